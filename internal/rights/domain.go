package rights

import (
	"errors"
	"fmt"
)

// ErrUnsupportedVersion indicates a schema version without a rights table.
var ErrUnsupportedVersion = errors.New("rights: unsupported version")

// Mask is a rights bitmask; each set bit grants one named capability.
type Mask uint64

// Has reports whether every bit of target is set.
func (m Mask) Has(target Mask) bool {
	return m&target == target
}

// HasAny reports whether at least one bit of target is set.
func (m Mask) HasAny(target Mask) bool {
	return m&target != 0
}

// Version identifies a generation of the rights bit layout.
type Version int

const (
	// MinVersion is the oldest layout still understood.
	MinVersion Version = 1
	// MaxVersion is the newest layout.
	MaxVersion Version = 3
	// PreferredVersion is used when no version marker has been stored.
	PreferredVersion = MaxVersion
)

// Supported reports whether v has a rights table.
func (v Version) Supported() bool {
	return v >= MinVersion && v <= MaxVersion
}

func (v Version) check() error {
	if !v.Supported() {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, int(v))
	}
	return nil
}

// Stable identifiers shared across versions.
const (
	KeyNone           = "NO_RIGHTS"
	KeyOverview       = "OVERVIEW_RIGHTS"
	KeyViewAll        = "VIEW_ALL_RIGHTS"
	KeyViewGallery    = "VIEW_GALLERY_RIGHTS"
	KeyViewSearch     = "VIEW_SEARCH_RIGHTS"
	KeyViewFullImage  = "VIEW_FULLIMAGE_RIGHTS"
	KeyViewNews       = "VIEW_NEWS_RIGHTS"
	KeyViewPages      = "VIEW_PAGES_RIGHTS"
	KeyViewAlbums     = "VIEW_ALBUMS_RIGHTS"
	KeyUpload         = "UPLOAD_RIGHTS"
	KeyPostComment    = "POST_COMMENT_RIGHTS"
	KeyComment        = "COMMENT_RIGHTS"
	KeyAlbum          = "ALBUM_RIGHTS"
	KeyZenpage        = "ZENPAGE_RIGHTS"
	KeyZenpagePages   = "ZENPAGE_PAGES_RIGHTS"
	KeyZenpageNews    = "ZENPAGE_NEWS_RIGHTS"
	KeyFiles          = "FILES_RIGHTS"
	KeyManageAllPages = "MANAGE_ALL_PAGES_RIGHTS"
	KeyManageAllNews  = "MANAGE_ALL_NEWS_RIGHTS"
	KeyManageAllAlbum = "MANAGE_ALL_ALBUM_RIGHTS"
	KeyThemes         = "THEMES_RIGHTS"
	KeyTags           = "TAGS_RIGHTS"
	KeyOptions        = "OPTIONS_RIGHTS"
	KeyAdmin          = "ADMIN_RIGHTS"

	// KeyAll is the synthesized union of every defined bit.
	KeyAll = "ALL_RIGHTS"
	// KeyDefault is the synthesized baseline granted to new accounts.
	KeyDefault = "DEFAULT_RIGHTS"
)

// Definition describes one named right within a version.
type Definition struct {
	Key     string
	Value   Mask
	Name    string
	Group   string
	Hint    string
	Visible bool
}
