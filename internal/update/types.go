package update

import (
	"fmt"

	"github.com/adamancini/hatch/internal/types"
)

// Asset is one entry of a release feed.
type Asset struct {
	PackageID     string `json:"PackageId"`
	Version       string `json:"Version"`
	Type          string `json:"Type"`
	FileName      string `json:"FileName"`
	SHA1          string `json:"SHA1,omitempty"`
	SHA256        string `json:"SHA256,omitempty"`
	Size          int64  `json:"Size"`
	NotesMarkdown string `json:"NotesMarkdown,omitempty"`
	NotesHTML     string `json:"NotesHtml,omitempty"`
}

// Feed is the document served as releases.<channel>.json.
type Feed struct {
	Assets []Asset `json:"Assets"`
}

// UpdateInfo describes an update found by Check. It cannot be modified
// after Check returns it.
type UpdateInfo struct {
	version   *Version
	asset     Asset
	downgrade bool
}

func newUpdateInfo(v *Version, asset Asset, downgrade bool) *UpdateInfo {
	return &UpdateInfo{version: v, asset: asset, downgrade: downgrade}
}

// Version is the version the update installs.
func (i *UpdateInfo) Version() *Version { return i.version }

// Asset returns a copy of the feed entry the update was built from.
func (i *UpdateInfo) Asset() Asset { return i.asset }

// FileName is the package name relative to the feed.
func (i *UpdateInfo) FileName() string { return i.asset.FileName }

// SHA256 is the expected hex digest of the package, if the feed has one.
func (i *UpdateInfo) SHA256() string { return i.asset.SHA256 }

// SHA1 is the expected hex digest of the package, if the feed has one.
func (i *UpdateInfo) SHA1() string { return i.asset.SHA1 }

// Size is the expected package size in bytes, or 0 when unknown.
func (i *UpdateInfo) Size() int64 { return i.asset.Size }

// Notes returns the release notes in markdown.
func (i *UpdateInfo) Notes() string { return i.asset.NotesMarkdown }

// IsDowngrade reports whether applying the update would install a version
// that is not newer than the running one.
func (i *UpdateInfo) IsDowngrade() bool { return i.downgrade }

// Equal reports whether two infos describe the same update.
func (i *UpdateInfo) Equal(other *UpdateInfo) bool {
	if i == nil || other == nil {
		return i == other
	}
	return i.version.IsEqual(other.version) && i.asset == other.asset && i.downgrade == other.downgrade
}

func (i *UpdateInfo) String() string {
	if i == nil {
		return "<none>"
	}
	return fmt.Sprintf("%s (%s)", i.version, i.asset.FileName)
}

// StateKind enumerates the lifecycle states of a Manager.
type StateKind int

const (
	StateIdle StateKind = iota
	StateChecked
	StateDownloaded
	StateApplying
)

func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "idle"
	case StateChecked:
		return "checked"
	case StateDownloaded:
		return "downloaded"
	case StateApplying:
		return "applying"
	default:
		return fmt.Sprintf("StateKind(%d)", int(k))
	}
}

// State is a snapshot of a Manager's lifecycle state. Info is set for
// Checked, Downloaded and Applying.
type State struct {
	Kind StateKind
	Info *UpdateInfo
}

func (s State) String() string {
	if s.Info == nil {
		return s.Kind.String()
	}
	return fmt.Sprintf("%s(%s)", s.Kind, s.Info.Version())
}

func (a Asset) assetType() (types.AssetType, error) {
	return types.ParseAssetType(a.Type)
}
