// Package cache stores estimated nutrient profiles keyed by normalized
// food description, so repeated foods skip the LLM call.
//
// Two backends implement NutrientCache: RedisCache for shared deployments
// and MemoryCache for single-process use and tests.
package cache
