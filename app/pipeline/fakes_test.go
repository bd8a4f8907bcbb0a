package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/lysyi3m/content-forge/app/database"
	"github.com/lysyi3m/content-forge/app/feed"
)

type transition struct {
	itemID string
	from   database.ItemStatus
	to     database.ItemStatus
}

// memStore is an in-memory stand-in for every repository the pipeline
// touches.
type memStore struct {
	mu          sync.Mutex
	sites       map[string]*database.Site
	sources     []*database.Source
	items       []*database.ContentItem
	categories  []*database.Category
	backlinks   map[string]*database.BacklinkSettings
	jobs        []database.JobLog
	transitions []transition
	seq         int
}

func newMemStore(sites ...*database.Site) *memStore {
	s := &memStore{
		sites:     map[string]*database.Site{},
		backlinks: map[string]*database.BacklinkSettings{},
	}
	for _, site := range sites {
		s.sites[site.ID] = site
	}
	return s
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

// addItem seeds an item directly, bypassing the fetch step. The returned
// pointer is the stored row, so tests may tweak it before a run.
func (s *memStore) addItem(item database.ContentItem) *database.ContentItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == "" {
		item.ID = s.nextID("item")
	}
	item.CreatedAt = time.Now()
	stored := item
	s.items = append(s.items, &stored)
	return &stored
}

func (s *memStore) item(id string) *database.ContentItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.ID == id {
			copied := *it
			return &copied
		}
	}
	return nil
}

func (s *memStore) GetSite(ctx context.Context, siteID string) (*database.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[siteID]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *site
	return &copied, nil
}

func (s *memStore) ListActiveSites(ctx context.Context) ([]database.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []database.Site
	for _, site := range s.sites {
		if site.Active {
			out = append(out, *site)
		}
	}
	slices.SortFunc(out, func(a, b database.Site) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out, nil
}

func (s *memStore) ListActiveSources(ctx context.Context, siteID string) ([]database.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []database.Source
	for _, src := range s.sources {
		if src.SiteID == siteID && src.Active {
			out = append(out, *src)
		}
	}
	return out, nil
}

func (s *memStore) ListSources(ctx context.Context, siteID string) ([]database.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []database.Source
	for _, src := range s.sources {
		if src.SiteID == siteID {
			out = append(out, *src)
		}
	}
	return out, nil
}

func (s *memStore) RecordFetch(ctx context.Context, sourceID string, fetchedAt time.Time, fetchErr string, newItems int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range s.sources {
		if src.ID == sourceID {
			src.LastFetchedAt = &fetchedAt
			src.LastError = fetchErr
			src.ItemCount += newItems
			src.Validated = src.Validated || fetchErr == ""
			return nil
		}
	}
	return database.ErrNotFound
}

func (s *memStore) InsertCandidate(ctx context.Context, item *database.ContentItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.SiteID == item.SiteID && it.OriginalURL == item.OriginalURL {
			return false, nil
		}
	}
	item.ID = s.nextID("item")
	item.Status = database.StatusRaw
	item.CreatedAt = time.Now()
	stored := *item
	s.items = append(s.items, &stored)
	return true, nil
}

func (s *memStore) ListPending(ctx context.Context, siteID string, limit int) ([]database.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []database.ContentItem
	for _, it := range s.items {
		if it.SiteID == siteID && it.Status.Rewritable() && len(out) < limit {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (s *memStore) ListPublished(ctx context.Context, siteID string, limit int) ([]database.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []database.ContentItem
	for _, it := range s.items {
		if it.SiteID == siteID && it.Status == database.StatusPublished && len(out) < limit {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (s *memStore) ListFingerprints(ctx context.Context, siteID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, it := range s.items {
		if it.SiteID != siteID || it.Fingerprint == "" {
			continue
		}
		if it.Status == database.StatusPublished || it.Status == database.StatusUnpublished {
			out = append(out, it.Fingerprint)
		}
	}
	return out, nil
}

func (s *memStore) find(id string, from []database.ItemStatus) (*database.ContentItem, error) {
	for _, it := range s.items {
		if it.ID == id {
			if !slices.Contains(from, it.Status) {
				return nil, database.ErrStatusConflict
			}
			return it, nil
		}
	}
	return nil, database.ErrStatusConflict
}

func (s *memStore) UpdateOriginalContent(ctx context.Context, item *database.ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, err := s.find(item.ID, database.RewritableStatuses)
	if err != nil {
		return err
	}
	it.OriginalTitle = item.OriginalTitle
	it.OriginalContent = item.OriginalContent
	it.OriginalAuthor = item.OriginalAuthor
	it.OriginalPublishedAt = item.OriginalPublishedAt
	it.OriginalImageURL = item.OriginalImageURL
	it.ContentHash = item.ContentHash
	return nil
}

func (s *memStore) UpdateStatus(ctx context.Context, itemID string, to database.ItemStatus, from []database.ItemStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, err := s.find(itemID, from)
	if err != nil {
		return err
	}
	s.transitions = append(s.transitions, transition{itemID: itemID, from: it.Status, to: to})
	it.Status = to
	return nil
}

func (s *memStore) SlugExists(ctx context.Context, siteID, slug string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.SiteID == siteID && it.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) Publish(ctx context.Context, item *database.ContentItem, from []database.ItemStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, err := s.find(item.ID, from)
	if err != nil {
		return err
	}
	s.transitions = append(s.transitions, transition{itemID: item.ID, from: it.Status, to: database.StatusPublished})

	now := time.Now().UTC()
	item.Status = database.StatusPublished
	item.PublishedAt = &now
	*it = *item

	if item.CategoryID != nil {
		for _, c := range s.categories {
			if c.ID == *item.CategoryID {
				c.ArticleCount++
			}
		}
	}
	return nil
}

func (s *memStore) FindCategoryByName(ctx context.Context, siteID, name string) (*database.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if c.SiteID == siteID && c.Name == name {
			copied := *c
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memStore) CreateCategory(ctx context.Context, siteID, name, slug string) (*database.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &database.Category{ID: s.nextID("cat"), SiteID: siteID, Name: name, Slug: slug}
	s.categories = append(s.categories, c)
	copied := *c
	return &copied, nil
}

func (s *memStore) GetBacklinkSettings(ctx context.Context, siteID string) (*database.BacklinkSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backlinks[siteID], nil
}

func (s *memStore) InsertJobLog(ctx context.Context, job *database.JobLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.ID = s.nextID("job")
	s.jobs = append(s.jobs, *job)
	return nil
}

func (s *memStore) ListJobLogs(ctx context.Context, siteID string, limit int) ([]database.JobLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []database.JobLog
	for i := len(s.jobs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.jobs[i].SiteID != nil && *s.jobs[i].SiteID == siteID {
			out = append(out, s.jobs[i])
		}
	}
	return out, nil
}

// scriptedCompleter answers every call with the next scripted reply; the
// last reply repeats.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []reply
	calls   int
}

type reply struct {
	text string
	err  error
}

func (c *scriptedCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.replies[min(c.calls, len(c.replies)-1)]
	c.calls++
	if r.err != nil {
		return "", r.err
	}
	if r.text != "" {
		return r.text, nil
	}
	return fmt.Sprintf(`{
		"title": "Rewritten story %d",
		"content": "<p>First paragraph.</p><p>Second paragraph.</p><p>Third paragraph.</p>",
		"excerpt": "Short summary.",
		"metaDescription": "A description.",
		"tags": ["news", "local"],
		"category": "Community",
		"socialCopy": "Read this",
		"socialHashtags": ["news"]
	}`, c.calls), nil
}

func (c *scriptedCompleter) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeExtractor struct {
	articles map[string]*feed.Article
	calls    []string
	panicOn  string
}

func (f *fakeExtractor) Extract(ctx context.Context, url string) (*feed.Article, error) {
	f.calls = append(f.calls, url)
	if url == f.panicOn {
		panic("extractor exploded")
	}
	article, ok := f.articles[url]
	if !ok {
		return nil, &feed.FetchError{URL: url, StatusCode: 404}
	}
	return article, nil
}

type fakeImages struct {
	stored []string
}

func (f *fakeImages) Store(ctx context.Context, imageURL, siteID, itemID string) string {
	if imageURL == "" {
		return ""
	}
	f.stored = append(f.stored, itemID)
	return "https://cdn.example.com/" + siteID + "/" + itemID + ".jpg"
}
