package app

import "strings"

// Page is an entry of the page registry.
type Page struct {
	Name          string
	Path          string
	RequiresLogin bool
}

var (
	PageCatalog = Page{Name: "catalog", Path: "/catalog", RequiresLogin: false}
	PageAccount = Page{Name: "account", Path: "/account", RequiresLogin: true}
)

// Pages lists the pages reachable from the header navigation.
var Pages = []Page{PageCatalog, PageAccount}

// PageFor returns the page serving path. Sub-paths (e.g. form posts under
// /account/) belong to their page.
func PageFor(path string) (Page, bool) {
	for _, p := range Pages {
		if path == p.Path || strings.HasPrefix(path, p.Path+"/") {
			return p, true
		}
	}
	return Page{}, false
}
