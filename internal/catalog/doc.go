// Package catalog builds the catalog explorer page: search filtering, alike
// software suggestions, per-software view data and pagination.
package catalog
