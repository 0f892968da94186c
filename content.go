package cntpack

import "fmt"

// ContentType is the asset type byte stored in the content table.
type ContentType uint8

const (
	ContentPNG    ContentType = 0
	ContentMap    ContentType = 1
	ContentFrames ContentType = 2
)

var contentTypeNames = map[ContentType]string{
	ContentPNG:    "png",
	ContentMap:    "map",
	ContentFrames: "fst",
}

func (t ContentType) String() string {
	if name, ok := contentTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

func (t ContentType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ContentType) UnmarshalText(text []byte) error {
	for ct, name := range contentTypeNames {
		if name == string(text) {
			*t = ct
			return nil
		}
	}
	return fmt.Errorf("unknown content type %q", text)
}
