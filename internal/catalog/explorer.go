package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/codegouvfr/sill-web/internal/domain"
)

const (
	// DefaultPageSize is the number of softwares shown before "load more".
	DefaultPageSize = 24

	basePath = "/catalog"
)

// SoftwareSource lists every software of the catalog.
type SoftwareSource interface {
	Softwares(ctx context.Context) ([]domain.Software, error)
}

// ReferentSource lists the softwares the current user is referent of.
type ReferentSource interface {
	UserSoftwareIDs(ctx context.Context) ([]int, error)
}

// Query is the catalog page state carried in the URL.
type Query struct {
	Search       string
	SoftwareName string
	Count        int
}

// ParseQuery reads a Query from URL parameters.
func ParseQuery(values url.Values) Query {
	q := Query{
		Search:       strings.TrimSpace(values.Get("search")),
		SoftwareName: values.Get("softwareName"),
	}
	if n, err := strconv.Atoi(values.Get("count")); err == nil && n > 0 {
		q.Count = n
	}
	return q
}

// ExtraInfo is the per-software data the cards need besides the software itself.
type ExtraInfo struct {
	IsUserReferent bool
	OpenLink       string
}

// AlikeEntry is a suggestion shown next to the search results. Software is
// set for known references only.
type AlikeEntry struct {
	Name     string
	Software *domain.Software
}

// Page is the view model of the catalog page.
type Page struct {
	Search        string
	Total         int
	Softwares     []domain.Software
	Alike         []AlikeEntry
	HasMoreToLoad bool
	LoadMoreLink  string

	// Selected is set in details mode.
	Selected   *domain.Software
	GoBackLink string

	extraInfo map[int]ExtraInfo
}

// ExtraInfo returns the view data of a software listed on the page. Asking
// for a software that is not listed is a programming error.
func (p *Page) ExtraInfo(softwareID int) ExtraInfo {
	info, ok := p.extraInfo[softwareID]
	if !ok {
		panic(fmt.Sprintf("catalog: no extra info for software %d", softwareID))
	}
	return info
}

// Explorer assembles catalog pages.
type Explorer struct {
	softwares SoftwareSource
}

func NewExplorer(softwares SoftwareSource) *Explorer {
	return &Explorer{softwares: softwares}
}

// View builds the page for q. referents may be nil for anonymous sessions.
func (e *Explorer) View(ctx context.Context, referents ReferentSource, q Query) (*Page, error) {
	softwares, err := e.softwares.Softwares(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list softwares: %w", err)
	}

	var userSoftwareIDs []int
	if referents != nil {
		userSoftwareIDs, err = referents.UserSoftwareIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list user softwares: %w", err)
		}
	}

	return BuildPage(softwares, userSoftwareIDs, q)
}

// BuildPage derives the page model from the full catalog.
func BuildPage(softwares []domain.Software, userSoftwareIDs []int, q Query) (*Page, error) {
	if q.Count <= 0 {
		q.Count = DefaultPageSize
	}

	filtered := Filter(softwares, q.Search)
	alike := AlikeSoftwares(softwares, filtered, q.Search)

	page := &Page{
		Search:     q.Search,
		Total:      len(filtered),
		Alike:      alike,
		GoBackLink: Link(q.Search, ""),
		extraInfo:  extraInfo(filtered, alike, userSoftwareIDs, q.Search),
	}

	if q.SoftwareName != "" {
		for i := range filtered {
			if filtered[i].Name == q.SoftwareName {
				page.Selected = &filtered[i]
				return page, nil
			}
		}
		return nil, fmt.Errorf("%w: %q", domain.ErrSoftwareNotFound, q.SoftwareName)
	}

	page.Softwares = filtered
	if len(filtered) > q.Count {
		page.Softwares = filtered[:q.Count]
		page.HasMoreToLoad = true
		page.LoadMoreLink = pageLink(q.Search, q.Count+DefaultPageSize)
	}
	return page, nil
}

// Filter keeps the softwares whose name, function or keywords contain search,
// ignoring case. An empty search keeps everything.
func Filter(softwares []domain.Software, search string) []domain.Software {
	needle := strings.ToLower(strings.TrimSpace(search))
	if needle == "" {
		return softwares
	}

	var out []domain.Software
	for _, s := range softwares {
		if matches(s, needle) {
			out = append(out, s)
		}
	}
	return out
}

func matches(s domain.Software, needle string) bool {
	if strings.Contains(strings.ToLower(s.Name), needle) || strings.Contains(strings.ToLower(s.Function), needle) {
		return true
	}
	for _, k := range s.Keywords {
		if strings.Contains(strings.ToLower(k), needle) {
			return true
		}
	}
	return false
}

// AlikeSoftwares collects the alike references of the filtered softwares
// that are not themselves part of the results. Only computed for a search.
func AlikeSoftwares(all, filtered []domain.Software, search string) []AlikeEntry {
	if strings.TrimSpace(search) == "" {
		return nil
	}

	byID := make(map[int]*domain.Software, len(all))
	for i := range all {
		byID[all[i].ID] = &all[i]
	}

	seenIDs := make(map[int]bool, len(filtered))
	for _, s := range filtered {
		seenIDs[s.ID] = true
	}
	seenNames := make(map[string]bool)

	var out []AlikeEntry
	for _, s := range filtered {
		for _, ref := range s.Alike {
			if !ref.IsKnown {
				if ref.Name == "" || seenNames[ref.Name] {
					continue
				}
				seenNames[ref.Name] = true
				out = append(out, AlikeEntry{Name: ref.Name})
				continue
			}

			if seenIDs[ref.SoftwareID] {
				continue
			}
			software, ok := byID[ref.SoftwareID]
			if !ok {
				continue
			}
			seenIDs[ref.SoftwareID] = true
			out = append(out, AlikeEntry{Name: software.Name, Software: software})
		}
	}
	return out
}

func extraInfo(filtered []domain.Software, alike []AlikeEntry, userSoftwareIDs []int, search string) map[int]ExtraInfo {
	referent := make(map[int]bool, len(userSoftwareIDs))
	for _, id := range userSoftwareIDs {
		referent[id] = true
	}

	m := make(map[int]ExtraInfo, len(filtered)+len(alike))
	add := func(s domain.Software) {
		m[s.ID] = ExtraInfo{
			IsUserReferent: referent[s.ID],
			OpenLink:       Link(search, s.Name),
		}
	}

	for _, s := range filtered {
		add(s)
	}
	for _, a := range alike {
		if a.Software != nil {
			add(*a.Software)
		}
	}
	return m
}

// Link returns the catalog URL for a search and, optionally, an opened
// software. Empty values are left out of the query string.
func Link(search, softwareName string) string {
	values := url.Values{}
	if search != "" {
		values.Set("search", search)
	}
	if softwareName != "" {
		values.Set("softwareName", softwareName)
	}
	return withQuery(values)
}

// Link returns the canonical URL of q: the search is trimmed and empty
// values are left out.
func (q Query) Link() string {
	values := url.Values{}
	if search := strings.TrimSpace(q.Search); search != "" {
		values.Set("search", search)
	}
	if q.SoftwareName != "" {
		values.Set("softwareName", q.SoftwareName)
	}
	if q.Count > 0 {
		values.Set("count", strconv.Itoa(q.Count))
	}
	return withQuery(values)
}

func pageLink(search string, count int) string {
	values := url.Values{}
	if search != "" {
		values.Set("search", search)
	}
	values.Set("count", strconv.Itoa(count))
	return withQuery(values)
}

func withQuery(values url.Values) string {
	if len(values) == 0 {
		return basePath
	}
	return basePath + "?" + values.Encode()
}
