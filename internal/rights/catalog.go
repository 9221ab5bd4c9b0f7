package rights

import (
	"cmp"
	"maps"
	"slices"
	"sync"
)

// Display groups used by versions 2 and 3.
const (
	GroupGeneral = "General"
	GroupGallery = "Gallery"
	GroupAlbums  = "Albums"
	GroupPages   = "Pages"
	GroupNews    = "News"
)

// Catalog maps stable keys to their definitions for one version.
type Catalog map[string]Definition

// Value returns the bit for key, or zero when the version lacks it.
func (c Catalog) Value(key string) Mask {
	return c[key].Value
}

// Has reports whether key is defined.
func (c Catalog) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// All returns ALL_RIGHTS.
func (c Catalog) All() Mask {
	return c.Value(KeyAll)
}

// Default returns DEFAULT_RIGHTS.
func (c Catalog) Default() Mask {
	return c.Value(KeyDefault)
}

// Admin returns the master privilege bit.
func (c Catalog) Admin() Mask {
	return c.Value(KeyAdmin)
}

// Ordered returns every definition, aggregates included, by descending value.
func (c Catalog) Ordered() []Definition {
	defs := slices.Collect(maps.Values(c))
	slices.SortFunc(defs, func(a, b Definition) int {
		if a.Value != b.Value {
			return cmp.Compare(b.Value, a.Value)
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return defs
}

// Visible returns the user assignable definitions by descending value.
func (c Catalog) Visible() []Definition {
	return slices.DeleteFunc(c.Ordered(), func(d Definition) bool { return !d.Visible })
}

// Keys returns the defined rights keys of mask in descending bit order.
func (c Catalog) Keys(mask Mask) []string {
	var keys []string
	for _, d := range c.Visible() {
		if mask.HasAny(d.Value) {
			keys = append(keys, d.Key)
		}
	}
	return keys
}

// Definitions returns the rights table of version v.
// The result is a private copy of a memoized table.
func Definitions(v Version) (Catalog, error) {
	if err := v.check(); err != nil {
		return nil, err
	}
	return maps.Clone(catalogs[v]()), nil
}

// MustDefinitions is Definitions for versions known to be supported.
func MustDefinitions(v Version) Catalog {
	c, err := Definitions(v)
	if err != nil {
		panic(err)
	}
	return c
}

// CanView reports whether mask carries the generic content viewing
// capability of version v.
func CanView(mask Mask, v Version) bool {
	c, err := Definitions(v)
	if err != nil {
		return false
	}
	if c.Has(KeyViewAll) {
		return mask.HasAny(c.Value(KeyViewAll))
	}
	return mask.HasAny(c.Value(KeyViewAlbums) | c.Value(KeyViewPages) | c.Value(KeyViewNews))
}

var catalogs = map[Version]func() Catalog{
	1: sync.OnceValue(func() Catalog { return build(v1) }),
	2: sync.OnceValue(func() Catalog { return build(v2) }),
	3: sync.OnceValue(func() Catalog { return build(v3) }),
}

type entry struct {
	key   string
	value Mask
	name  string
	group string
}

func build(entries []entry) Catalog {
	c := make(Catalog, len(entries)+2)
	var all Mask
	for _, e := range entries {
		c[e.key] = Definition{
			Key:     e.key,
			Value:   e.value,
			Name:    e.name,
			Group:   e.group,
			Hint:    hints[e.key],
			Visible: e.key != KeyNone,
		}
		all |= e.value
	}
	c[KeyAll] = Definition{Key: KeyAll, Value: all, Name: "All rights"}

	def := c.Value(KeyOverview) | c.Value(KeyPostComment)
	if c.Has(KeyViewAll) {
		def |= c.Value(KeyViewAll)
	} else {
		def |= c.Value(KeyViewAlbums) | c.Value(KeyViewPages) | c.Value(KeyViewNews) |
			c.Value(KeyViewSearch) | c.Value(KeyViewGallery)
	}
	c[KeyDefault] = Definition{Key: KeyDefault, Value: def, Name: "Default rights"}
	return c
}

func bit(n uint) Mask { return 1 << n }

// Version 1 carried ZENPAGE_RIGHTS as 2049, overlapping NO_RIGHTS of later
// layouts; it is normalized to the single bit 2048 here.
var v1 = []entry{
	{KeyNone, 2, "No rights", ""},
	{KeyOverview, 4, "Overview", ""},
	{KeyViewAll, 8, "View all", ""},
	{KeyUpload, 16, "Upload", ""},
	{KeyPostComment, 32, "Post comments", ""},
	{KeyComment, 64, "Comments", ""},
	{KeyAlbum, 256, "Album", ""},
	{KeyManageAllAlbum, 512, "Manage all albums", ""},
	{KeyThemes, 1024, "Themes", ""},
	{KeyZenpage, 2048, "Zenpage", ""},
	{KeyTags, 4096, "Tags", ""},
	{KeyOptions, 8192, "Options", ""},
	{KeyAdmin, 65536, "Admin", ""},
}

var v2 = []entry{
	{KeyNone, 1, "No rights", ""},
	{KeyOverview, bit(2), "Overview", GroupGallery},
	{KeyViewAll, bit(4), "View all", GroupGallery},
	{KeyUpload, bit(6), "Upload", GroupGallery},
	{KeyPostComment, bit(8), "Post comments", GroupGallery},
	{KeyComment, bit(10), "Comments", GroupGallery},
	{KeyAlbum, bit(12), "Albums", GroupAlbums},
	{KeyZenpagePages, bit(14), "Pages", GroupPages},
	{KeyZenpageNews, bit(16), "News", GroupNews},
	{KeyFiles, bit(18), "Files", GroupGallery},
	{KeyManageAllPages, bit(20), "Manage all pages", GroupPages},
	{KeyManageAllNews, bit(22), "Manage all news", GroupNews},
	{KeyManageAllAlbum, bit(24), "Manage all albums", GroupAlbums},
	{KeyThemes, bit(26), "Themes", GroupGallery},
	{KeyTags, bit(28), "Tags", GroupGeneral},
	{KeyOptions, bit(29), "Options", GroupGeneral},
	{KeyAdmin, bit(30), "Admin", GroupGeneral},
}

var v3 = []entry{
	{KeyNone, 1, "No rights", ""},
	{KeyOverview, bit(2), "Overview", GroupGeneral},
	{KeyViewGallery, bit(4), "View gallery", GroupGallery},
	{KeyViewSearch, bit(5), "View search", GroupGallery},
	{KeyViewFullImage, bit(6), "View fullimage", GroupAlbums},
	{KeyViewNews, bit(7), "View news", GroupNews},
	{KeyViewPages, bit(8), "View pages", GroupPages},
	{KeyViewAlbums, bit(9), "View albums", GroupAlbums},
	{KeyPostComment, bit(11), "Post comments", GroupGallery},
	{KeyComment, bit(12), "Comments", GroupGallery},
	{KeyUpload, bit(13), "Upload", GroupAlbums},
	{KeyZenpageNews, bit(15), "News", GroupNews},
	{KeyZenpagePages, bit(16), "Pages", GroupPages},
	{KeyFiles, bit(17), "Files", GroupGallery},
	{KeyAlbum, bit(18), "Albums", GroupAlbums},
	{KeyManageAllNews, bit(21), "Manage all news", GroupNews},
	{KeyManageAllPages, bit(22), "Manage all pages", GroupPages},
	{KeyManageAllAlbum, bit(23), "Manage all albums", GroupAlbums},
	{KeyThemes, bit(26), "Themes", GroupGallery},
	{KeyTags, bit(28), "Tags", GroupGallery},
	{KeyOptions, bit(29), "Options", GroupGeneral},
	{KeyAdmin, bit(30), "Admin", GroupGeneral},
}

var hints = map[string]string{
	KeyOverview:       "Users with this right may view the admin overview page.",
	KeyViewAll:        "Users with this right may view all of the gallery regardless of protection of the page.",
	KeyViewGallery:    "Users with this right may view otherwise protected generic gallery pages.",
	KeyViewSearch:     "Users with this right may view search pages even if password protected.",
	KeyViewFullImage:  "Users with this right may view all full sized (raw) images.",
	KeyViewNews:       "Users with this right may view all news articles.",
	KeyViewPages:      "Users with this right may view all pages.",
	KeyViewAlbums:     "Users with this right may view all albums (and their images).",
	KeyUpload:         "Users with this right may upload to the albums for which they have management rights.",
	KeyPostComment:    "When only members can comment, only users with this right may post comments.",
	KeyComment:        "Users with this right may make comments tab changes.",
	KeyAlbum:          "Users with this right may access the albums tab to make changes.",
	KeyZenpagePages:   "Users with this right may edit and manage pages.",
	KeyZenpageNews:    "Users with this right may edit and manage articles and categories.",
	KeyFiles:          "Allows the user access to the file manager.",
	KeyManageAllPages: "Allows managing any page, not only assigned ones.",
	KeyManageAllNews:  "Allows managing any news article or category, not only assigned ones.",
	KeyManageAllAlbum: "Allows managing any album in the gallery, not only assigned ones.",
	KeyThemes:         "Users with this right may make theme changes for their managed albums.",
	KeyTags:           "Users with this right may make additions and changes to the set of tags.",
	KeyOptions:        "Users with this right may make changes on the options tabs.",
	KeyAdmin:          "The master privilege. A user with Admin can do anything.",
}
