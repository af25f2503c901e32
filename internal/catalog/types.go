// Package catalog implements the upstream podcast catalog API client:
// top charts per genre, per-collection lookup, and title search.
package catalog

// GenreID identifies a catalog genre. Opaque; supplied by the database.
type GenreID = string

// CollectionID identifies one catalog entry (a podcast show). Opaque;
// parsed out of top chart entries.
type CollectionID = string

// Detail is the metadata blob returned by a lookup call. Immutable once
// fetched; cached for the lifetime of one run.
type Detail struct {
	CollectionID CollectionID
	Name         string
	ArtworkURL   string
	FeedURL      string
	GenreIDs     []GenreID

	// Delisted marks a valid empty lookup result: the collection is no
	// longer published upstream. Not an error.
	Delisted bool
}

type chartResponse struct {
	Feed struct {
		Entry []chartEntry `json:"entry"`
	} `json:"feed"`
}

type chartEntry struct {
	ID struct {
		Attributes struct {
			IMID string `json:"im:id"`
		} `json:"attributes"`
	} `json:"id"`
}

type lookupResponse struct {
	ResultCount int            `json:"resultCount"`
	Results     []lookupResult `json:"results"`
}

type lookupResult struct {
	CollectionID   int64    `json:"collectionId"`
	CollectionName string   `json:"collectionName"`
	ArtworkURL600  string   `json:"artworkUrl600"`
	FeedURL        string   `json:"feedUrl"`
	GenreIDs       []string `json:"genreIds"`
}
