package display

import (
	"encoding/base64"
	"fmt"
	"io"
)

const (
	escapeStart = "\x1b_G"
	escapeEnd   = "\x1b\\"
	chunkSize   = 4096

	// previewImageID tags every preview so a newer one replaces it in place.
	previewImageID = 1
)

// KittyEncoder writes PNG data using the kitty graphics protocol.
type KittyEncoder struct {
	out io.Writer
	id  int
}

func NewKittyEncoder(out io.Writer) *KittyEncoder {
	return &KittyEncoder{out: out, id: previewImageID}
}

func (e *KittyEncoder) Encode(pngData []byte) error {
	if len(pngData) == 0 {
		return nil
	}

	encoded := base64.StdEncoding.EncodeToString(pngData)
	chunks := splitIntoChunks(encoded, chunkSize)

	for i, chunk := range chunks {
		var params string
		switch {
		case len(chunks) == 1:
			params = fmt.Sprintf("a=T,f=100,i=%d,q=2", e.id)
		case i == 0:
			params = fmt.Sprintf("a=T,f=100,i=%d,q=2,m=1", e.id)
		case i == len(chunks)-1:
			params = "m=0"
		default:
			params = "m=1"
		}

		if _, err := fmt.Fprintf(e.out, "%s%s;%s%s", escapeStart, params, chunk, escapeEnd); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the preview image and frees its data in the terminal.
func (e *KittyEncoder) Delete() error {
	_, err := fmt.Fprintf(e.out, "%sa=d,d=I,i=%d,q=2%s", escapeStart, e.id, escapeEnd)
	return err
}

func splitIntoChunks(s string, size int) []string {
	var chunks []string
	for len(s) > 0 {
		n := min(size, len(s))
		chunks = append(chunks, s[:n])
		s = s[n:]
	}
	return chunks
}
