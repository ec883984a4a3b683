package archive

import (
	"bytes"
	"encoding/hex"
	"encoding/xml"
	"fmt"
)

const (
	// CatalogName is the archive entry holding the catalog.
	CatalogName = "catalog.xml"
	// LibraryName is the archive entry holding the program image. It is
	// also the catalog key of the library record carrying its digests.
	LibraryName = "library.swf"

	catalogVersion = "1"
)

// Catalog is the metadata document stored at CatalogName inside every
// archive.
type Catalog struct {
	XMLName   xml.Name     `xml:"catalog"`
	Version   string       `xml:"version,attr"`
	Producer  Producer     `xml:"producer"`
	Features  Features     `xml:"features"`
	Libraries []Library    `xml:"libraries>library"`
	Files     []FileRecord `xml:"files>file"`
}

// Producer records which tool wrote the archive.
type Producer struct {
	Name    string `xml:"name,attr"`
	Version string `xml:"version,attr"`
}

// Features records build-wide switches.
type Features struct {
	Debug   bool     `xml:"debug,attr"`
	Locales []string `xml:"locale"`
}

// Library describes one program image and the digests identifying it.
type Library struct {
	Path         string       `xml:"path,attr"`
	Digests      []Digest     `xml:"digests>digest"`
	Dependencies []Dependency `xml:"dependencies>dependency"`
	Components   []Component  `xml:"components>component"`
	Bundles      []string     `xml:"bundles>bundle"`
	Stylesheets  []string     `xml:"stylesheets>stylesheet"`
}

// Digest is a content hash over a program image, optionally signed.
type Digest struct {
	Type      string `xml:"type,attr"`
	Signed    bool   `xml:"signed,attr"`
	Value     string `xml:"value,attr"`
	Signature string `xml:"signature,attr,omitempty"`
}

// Bytes decodes the raw hash bytes of the digest.
func (d Digest) Bytes() ([]byte, error) {
	raw, err := hex.DecodeString(d.Value)
	if err != nil {
		return nil, fmt.Errorf("digest %s: invalid value %q: %w", d.Type, d.Value, err)
	}
	return raw, nil
}

// Dependency is a library this archive was compiled against.
type Dependency struct {
	Name string `xml:"name,attr"`
	Hash string `xml:"hash,attr"`
}

// Component is one compiled unit recorded in the catalog.
type Component struct {
	Kind string `xml:"kind,attr"`
	Name string `xml:"name,attr"`
}

// FileRecord is an archived file stored verbatim.
type FileRecord struct {
	Path string `xml:"path,attr"`
	Size int64  `xml:"size,attr"`
}

// NewCatalog returns an empty catalog stamped with the producer.
func NewCatalog(producer, version string) *Catalog {
	return &Catalog{
		Version:  catalogVersion,
		Producer: Producer{Name: producer, Version: version},
	}
}

// Clone returns a deep copy of c.
func (c *Catalog) Clone() *Catalog {
	out := *c
	out.Features.Locales = append([]string(nil), c.Features.Locales...)
	out.Files = append([]FileRecord(nil), c.Files...)
	out.Libraries = make([]Library, len(c.Libraries))
	for i, lib := range c.Libraries {
		lib.Digests = append([]Digest(nil), lib.Digests...)
		lib.Dependencies = append([]Dependency(nil), lib.Dependencies...)
		lib.Components = append([]Component(nil), lib.Components...)
		lib.Bundles = append([]string(nil), lib.Bundles...)
		lib.Stylesheets = append([]string(nil), lib.Stylesheets...)
		out.Libraries[i] = lib
	}
	return &out
}

// Library returns the library record keyed by path, or nil.
func (c *Catalog) Library(path string) *Library {
	for i := range c.Libraries {
		if c.Libraries[i].Path == path {
			return &c.Libraries[i]
		}
	}
	return nil
}

// Digest returns the digest with the requested signed-ness.
func (l *Library) Digest(signed bool) (Digest, bool) {
	for _, d := range l.Digests {
		if d.Signed == signed {
			return d, true
		}
	}
	return Digest{}, false
}

// SetDigest replaces the digest with the same signed-ness, or appends d
// when the library has none.
func (l *Library) SetDigest(d Digest) {
	for i := range l.Digests {
		if l.Digests[i].Signed == d.Signed {
			l.Digests[i] = d
			return
		}
	}
	l.Digests = append(l.Digests, d)
}

// MarshalCatalog serializes c as an indented XML document.
func MarshalCatalog(c *Catalog) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("marshal catalog: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// UnmarshalCatalog parses a catalog document.
func UnmarshalCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := xml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal catalog: %w", err)
	}
	if c.Version != catalogVersion {
		return nil, fmt.Errorf("unmarshal catalog: unsupported version %q", c.Version)
	}
	return &c, nil
}
