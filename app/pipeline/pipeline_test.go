package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/content-forge/app/cfg"
	"github.com/lysyi3m/content-forge/app/database"
	"github.com/lysyi3m/content-forge/app/enrich"
	"github.com/lysyi3m/content-forge/app/feed"
	"github.com/lysyi3m/content-forge/app/filter"
	"github.com/lysyi3m/content-forge/app/fingerprint"
	"github.com/lysyi3m/content-forge/app/rewrite"
)

const communityGardens = "City councils across the region are turning vacant lots into community gardens, and the results have" +
	" surprised even the most skeptical planners. Residents who once walked past fenced rubble now spend " +
	"their evenings weeding raised beds, trading seedlings and teaching children how tomatoes grow. Local" +
	" officials say the gardens cost very little to maintain because volunteers handle most of the daily " +
	"work, while the city supplies water, soil and basic tools. Researchers at the state university " +
	"tracked twelve neighborhoods over three years and found that blocks with a garden reported fewer " +
	"complaints about litter and noise. Business owners nearby noticed more foot traffic on weekends, " +
	"especially during harvest festivals when growers share surplus vegetables with anyone who stops by. " +
	"Critics argue that the land could be used for badly needed housing, and some gardens have already " +
	"been relocated to make room for new apartments. Supporters respond that green space improves health," +
	" lowers summer temperatures and gives isolated older residents a reason to leave the house. The " +
	"council plans to review the program next spring, with a public hearing scheduled so that gardeners, " +
	"developers and neighbors can present their views before any decision on future funding is made."

var distinctStories = []string{
	"The river cleanup volunteers collected old tires and plastic bottles along the northern bank during a cold Saturday morning.",
	"A regional orchestra rehearsed a forgotten symphony in the restored theater, drawing curious neighbors to the open windows.",
	"Engineers tested a quieter tram prototype overnight, measuring vibration levels near the hospital and the central library.",
	"Farmers in the valley reported an early apple harvest after a warm spring and unusually steady rainfall through the summer.",
	"The public library extended its weekend hours and added evening classes on local history, photography and family genealogy.",
}

var testSite = &database.Site{
	ID:          "site-1",
	Name:        "Local News",
	ToneOfVoice: "friendly",
	Language:    "en",
	Active:      true,
}

type harness struct {
	store      *memStore
	completer  *scriptedCompleter
	extractor  *fakeExtractor
	images     *fakeImages
	registry   *prometheus.Registry
	pipeline   *Pipeline
	httpClient *http.Client
}

func newHarness(t *testing.T, replies ...reply) *harness {
	t.Helper()
	if len(replies) == 0 {
		replies = []reply{{}}
	}

	settings := cfg.DefaultPipeline()
	h := &harness{
		store:     newMemStore(testSite),
		completer: &scriptedCompleter{replies: replies},
		extractor: &fakeExtractor{articles: map[string]*feed.Article{}},
		images:    &fakeImages{},
		registry:  prometheus.NewRegistry(),
	}

	noSleep := rewrite.WithSleeper(func(ctx context.Context, d time.Duration) error { return nil })

	h.pipeline = New(Deps{
		Sources:     h.store,
		Items:       h.store,
		Backlinks:   h.store,
		Reader:      feed.NewReader(feed.NewFetcher(nil, "test-agent", 5*time.Second)),
		Extractor:   h.extractor,
		Filter:      filter.NewFilterer(settings.Filter, nil),
		Fingerprint: fingerprint.New(settings.Fingerprint.Threshold),
		Rewriter:    rewrite.NewRewriter(h.completer, settings.Rewrite, noSleep),
		Categories:  enrich.NewCategoryResolver(h.store),
		Images:      h.images,
		Metrics:     NewMetrics(h.registry),
	})
	return h
}

func (h *harness) seed(content string) *database.ContentItem {
	n := len(h.store.items) + 1
	return h.store.addItem(database.ContentItem{
		SiteID:          testSite.ID,
		SourceID:        "src-1",
		OriginalTitle:   fmt.Sprintf("Story %d", n),
		OriginalURL:     fmt.Sprintf("https://news.example.com/story-%d", n),
		OriginalContent: "<p>" + content + "</p>",
		Status:          database.StatusRaw,
	})
}

func rssFeed(items ...string) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>Test</title>`)
	for i, body := range items {
		fmt.Fprintf(&sb, `<item><title>Item %d</title><link>https://news.example.com/item-%d</link><description><![CDATA[<p>%s</p>]]></description></item>`, i, i, body)
	}
	sb.WriteString(`</channel></rss>`)
	return sb.String()
}

func serveFeed(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetchSources_SecondRunFindsNothingNew(t *testing.T) {
	h := newHarness(t)
	server := serveFeed(t, rssFeed(distinctStories[0], distinctStories[1], distinctStories[2]))
	h.store.sources = []*database.Source{{ID: "src-1", SiteID: testSite.ID, URL: server.URL, Kind: database.SourceKindFeed, Active: true}}

	first, err := h.pipeline.FetchSources(context.Background(), testSite)
	require.NoError(t, err)
	assert.Equal(t, FetchStats{Sourced: 1, NewArticles: 3}, first)

	second, err := h.pipeline.FetchSources(context.Background(), testSite)
	require.NoError(t, err)
	assert.Equal(t, FetchStats{Sourced: 1, NewArticles: 0, Duplicates: 3}, second)

	assert.Len(t, h.store.items, 3)
	for _, item := range h.store.items {
		assert.Equal(t, database.StatusRaw, item.Status)
		assert.Len(t, item.ContentHash, 64)
	}

	src := h.store.sources[0]
	require.NotNil(t, src.LastFetchedAt)
	assert.Empty(t, src.LastError)
	assert.Equal(t, 3, src.ItemCount)
	assert.True(t, src.Validated)

	assert.Equal(t, 3.0, testutil.ToFloat64(h.pipeline.Metrics.CandidatesSeen.WithLabelValues("duplicate")))
}

func TestFetchSources_FailingSourceDoesNotStopOthers(t *testing.T) {
	h := newHarness(t)
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer broken.Close()
	healthy := serveFeed(t, rssFeed(distinctStories[0]))

	h.store.sources = []*database.Source{
		{ID: "src-broken", SiteID: testSite.ID, URL: broken.URL, Kind: database.SourceKindFeed, Active: true},
		{ID: "src-odd", SiteID: testSite.ID, URL: healthy.URL, Kind: database.SourceKind("podcast"), Active: true},
		{ID: "src-ok", SiteID: testSite.ID, URL: healthy.URL, Kind: database.SourceKindFeed, Active: true},
		{ID: "src-off", SiteID: testSite.ID, URL: broken.URL, Kind: database.SourceKindFeed, Active: false},
	}

	stats, err := h.pipeline.FetchSources(context.Background(), testSite)
	require.NoError(t, err)

	assert.Equal(t, FetchStats{Sourced: 3, NewArticles: 1, Errors: 2}, stats)
	assert.Contains(t, h.store.sources[0].LastError, "HTTP 502")
	assert.Contains(t, h.store.sources[1].LastError, "unknown source kind")
	assert.Empty(t, h.store.sources[2].LastError)
	assert.Nil(t, h.store.sources[3].LastFetchedAt)
}

func TestFetchSources_EmptyFeed(t *testing.T) {
	h := newHarness(t)
	server := serveFeed(t, rssFeed())
	h.store.sources = []*database.Source{{ID: "src-1", SiteID: testSite.ID, URL: server.URL, Kind: database.SourceKindFeed, Active: true}}

	stats, err := h.pipeline.FetchSources(context.Background(), testSite)
	require.NoError(t, err)
	assert.Equal(t, FetchStats{Sourced: 1}, stats)
	assert.Empty(t, h.store.sources[0].LastError)
}

func TestRewritePending_PromotionalItemIsFiltered(t *testing.T) {
	h := newHarness(t)
	server := serveFeed(t, rssFeed("Buy our discounted widgets now!!! 50% OFF"))
	h.store.sources = []*database.Source{{ID: "src-1", SiteID: testSite.ID, URL: server.URL, Kind: database.SourceKindFeed, Active: true}}
	runner := NewRunner(h.pipeline, h.store, h.store, nil, 0)

	_, err := runner.RunFetch(context.Background(), testSite.ID)
	require.NoError(t, err)

	job, err := runner.RunRewrite(context.Background(), testSite.ID, 10)
	require.NoError(t, err)

	require.Len(t, h.store.items, 1)
	assert.Equal(t, database.StatusFiltered, h.store.items[0].Status)
	assert.Zero(t, h.completer.Calls())
	assert.Equal(t, 0, job.ArticlesPublished)
	assert.Equal(t, 1, job.ArticlesRewritten)
	assert.Equal(t, database.JobStatusSuccess, job.Status)
}

func TestRewritePending_NearDuplicatesInOneBatch(t *testing.T) {
	h := newHarness(t)
	first := h.seed(communityGardens)
	second := h.seed(communityGardens + " Update")

	stats, err := h.pipeline.RewritePending(context.Background(), testSite, 10)
	require.NoError(t, err)

	assert.Equal(t, database.StatusPublished, h.store.item(first.ID).Status)
	assert.Equal(t, database.StatusDuplicate, h.store.item(second.ID).Status)
	assert.Equal(t, 1, h.completer.Calls())
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Published)
	assert.Equal(t, 1, stats.Duplicates)
}

func TestRewritePending_DuplicateOfEarlierPublication(t *testing.T) {
	h := newHarness(t)
	h.store.addItem(database.ContentItem{
		SiteID:      testSite.ID,
		OriginalURL: "https://news.example.com/old",
		Fingerprint: fingerprint.Compute(communityGardens),
		Status:      database.StatusPublished,
	})
	fresh := h.seed(communityGardens + " Update")

	stats, err := h.pipeline.RewritePending(context.Background(), testSite, 10)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, database.StatusDuplicate, h.store.item(fresh.ID).Status)
	assert.Zero(t, h.completer.Calls())
}

func TestRewritePending_PublishesEnrichedItem(t *testing.T) {
	h := newHarness(t)
	item := h.seed(distinctStories[0])
	item.OriginalImageURL = "https://img.example.com/a.jpg"

	stats, err := h.pipeline.RewritePending(context.Background(), testSite, 10)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Published)

	published := h.store.item(item.ID)
	assert.Equal(t, database.StatusPublished, published.Status)
	assert.Equal(t, "Rewritten story 1", published.Title)
	assert.Equal(t, "rewritten-story-1", published.Slug)
	assert.NotNil(t, published.PublishedAt)
	assert.Len(t, published.Fingerprint, fingerprint.Bits)
	assert.Equal(t, []string{"news", "local"}, []string(published.Tags))
	assert.Equal(t, []string{"#news"}, []string(published.SocialHashtags))
	assert.Equal(t, "https://cdn.example.com/site-1/"+item.ID+".jpg", published.ImageURL)

	require.NotNil(t, published.CategoryID)
	require.Len(t, h.store.categories, 1)
	assert.Equal(t, "Community", h.store.categories[0].Name)
	assert.Equal(t, 1, h.store.categories[0].ArticleCount)
	assert.False(t, published.BacklinkApplied)
}

func TestRewritePending_SlugCollisionGetsSuffix(t *testing.T) {
	fixed := `{"title": "Same Title", "content": "<p>Body</p>", "category": "News"}`
	h := newHarness(t, reply{text: fixed})
	first := h.seed(distinctStories[0])
	second := h.seed(distinctStories[1])

	_, err := h.pipeline.RewritePending(context.Background(), testSite, 10)
	require.NoError(t, err)

	assert.Equal(t, "same-title", h.store.item(first.ID).Slug)
	assert.Equal(t, "same-title-"+strings.ReplaceAll(second.ID, "-", ""), h.store.item(second.ID).Slug)
}

func TestRewritePending_BacklinkFrequency(t *testing.T) {
	h := newHarness(t)
	h.store.backlinks[testSite.ID] = &database.BacklinkSettings{
		SiteID:    testSite.ID,
		Enabled:   true,
		TargetURL: "https://sponsor.example.com",
		Placement: database.PlacementInline,
		LinkText:  "Sponsor",
		Frequency: 2,
	}
	var items []*database.ContentItem
	for _, story := range distinctStories {
		items = append(items, h.seed(story))
	}

	stats, err := h.pipeline.RewritePending(context.Background(), testSite, 10)
	require.NoError(t, err)
	require.Equal(t, 5, stats.Published)

	for i, item := range items {
		published := h.store.item(item.ID)
		want := i%2 == 0
		assert.Equal(t, want, published.BacklinkApplied, "index %d", i)
		assert.Equal(t, want, strings.Contains(published.Content, "sponsor.example.com"), "index %d", i)
	}
}

func TestRewritePending_StatusesOnlyMoveFromRewritable(t *testing.T) {
	h := newHarness(t)
	statuses := []database.ItemStatus{
		database.StatusRaw,
		database.StatusFailed,
		database.StatusFiltered,
		database.StatusDuplicate,
		database.StatusDeleted,
	}
	for i, status := range statuses {
		item := h.seed(distinctStories[i])
		item.Status = status
	}

	stats, err := h.pipeline.RewritePending(context.Background(), testSite, 10)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Processed)
	assert.Equal(t, 3, stats.Published)
	assert.Equal(t, database.StatusDuplicate, h.store.items[3].Status)
	assert.Equal(t, database.StatusDeleted, h.store.items[4].Status)

	for _, tr := range h.store.transitions {
		if tr.to == database.StatusPublished {
			assert.True(t, tr.from.Rewritable(), "published from %s", tr.from)
		}
	}
}

func TestRewritePending_FailuresAreIsolated(t *testing.T) {
	h := newHarness(t,
		reply{text: "sorry, I can't produce JSON today"},
		reply{err: errors.New("connection reset by peer")},
		reply{},
	)
	malformed := h.seed(distinctStories[0])
	transport := h.seed(distinctStories[1])
	healthy := h.seed(distinctStories[2])

	stats, err := h.pipeline.RewritePending(context.Background(), testSite, 10)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Processed)
	assert.Equal(t, 2, stats.Errors)
	assert.Equal(t, 1, stats.Published)
	assert.Equal(t, database.StatusFailed, h.store.item(malformed.ID).Status)
	assert.Equal(t, database.StatusFailed, h.store.item(transport.ID).Status)
	assert.Equal(t, database.StatusPublished, h.store.item(healthy.ID).Status)

	assert.ErrorIs(t, stats.Results[0].Err, rewrite.ErrMalformedResponse)
	assert.Equal(t, StageRewrite, stats.Results[1].Stage)
	assert.Equal(t, 3, h.completer.Calls())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.pipeline.Metrics.GenerativeCalls.WithLabelValues("malformed")))
}

func TestRewritePending_RateLimitExhaustion(t *testing.T) {
	h := newHarness(t, reply{err: rewrite.ErrRateLimited})
	item := h.seed(distinctStories[0])

	stats, err := h.pipeline.RewritePending(context.Background(), testSite, 10)
	require.NoError(t, err)

	assert.Equal(t, 4, h.completer.Calls())
	assert.Equal(t, 1, stats.Errors)
	assert.ErrorIs(t, stats.Results[0].Err, rewrite.ErrRetriesExhausted)
	assert.Equal(t, database.StatusFailed, h.store.item(item.ID).Status)
}

func TestRewritePending_ExtractsContentEmptyItems(t *testing.T) {
	h := newHarness(t)
	published := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	item := h.store.addItem(database.ContentItem{
		SiteID:      testSite.ID,
		OriginalURL: "https://news.example.com/from-sitemap",
		Status:      database.StatusRaw,
	})
	h.extractor.articles[item.OriginalURL] = &feed.Article{
		Title:       "From the sitemap",
		Author:      "Jane Reporter",
		PublishedAt: &published,
		ImageURL:    "https://img.example.com/s.jpg",
		Content:     "<p>" + distinctStories[3] + "</p>",
	}
	missing := h.store.addItem(database.ContentItem{
		SiteID:      testSite.ID,
		OriginalURL: "https://news.example.com/gone",
		Status:      database.StatusRaw,
	})

	stats, err := h.pipeline.RewritePending(context.Background(), testSite, 10)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Published)
	assert.Equal(t, 1, stats.Errors)

	stored := h.store.item(item.ID)
	assert.Equal(t, "From the sitemap", stored.OriginalTitle)
	assert.Equal(t, "Jane Reporter", stored.OriginalAuthor)
	assert.Contains(t, stored.OriginalContent, "apple harvest")
	assert.NotEmpty(t, stored.ContentHash)

	assert.Equal(t, database.StatusFailed, h.store.item(missing.ID).Status)
	assert.Equal(t, StageExtract, stats.Results[1].Stage)
	assert.ErrorIs(t, stats.Results[1].Err, feed.ErrSourceUnreachable)
}

func TestRewritePending_PanicMarksItemFailed(t *testing.T) {
	h := newHarness(t)
	boom := h.store.addItem(database.ContentItem{
		SiteID:      testSite.ID,
		OriginalURL: "https://news.example.com/explodes",
		Status:      database.StatusRaw,
	})
	h.extractor.panicOn = boom.OriginalURL
	next := h.seed(distinctStories[4])

	stats, err := h.pipeline.RewritePending(context.Background(), testSite, 10)
	require.NoError(t, err)

	assert.Equal(t, StagePanic, stats.Results[0].Stage)
	assert.Equal(t, database.StatusFailed, h.store.item(boom.ID).Status)
	assert.Equal(t, database.StatusPublished, h.store.item(next.ID).Status)
}

func TestRewritePending_RespectsLimit(t *testing.T) {
	h := newHarness(t)
	for _, story := range distinctStories {
		h.seed(story)
	}

	stats, err := h.pipeline.RewritePending(context.Background(), testSite, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 2, h.completer.Calls())
}
