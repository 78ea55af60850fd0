// Package domain contains the core business entities of the nutrition tracker:
// users, food images and the items recognized in them, nutrient profiles and
// weekly ledgers, meal history, and receipts. It also owns the fixed nutrient
// vocabulary, the reference daily allowances, and unit conversion.
//
// The package has no infrastructure dependencies.
package domain
