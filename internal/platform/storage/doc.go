// Package storage writes uploaded food photos and receipts to an object
// store and reads them back for the background pipeline.
//
// A stored object is addressed by its location string: a file path for
// LocalStore and an s3://bucket/key URL for S3Store. Locations are what the
// database records in image_url.
package storage
