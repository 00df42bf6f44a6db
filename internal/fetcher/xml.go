// Package fetcher streams records out of Stack Exchange dump tables.
//
// Each dump table (Users.xml, Posts.xml, Tags.xml) is a single document
// whose records are self-closing <row .../> elements with all fields as
// attributes.
package fetcher

import (
	"context"
	"encoding/xml"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// rowElement is the record element name in every dump table.
const rowElement = "row"

// StreamRows decodes the <row> elements of a dump table and sends them to
// a channel. The type parameter T must be a struct with xml attr tags.
// Errors on the error channel are structural (truncated document, bad
// token stream) and abort the stream; attribute-level validation is the
// caller's job. Both channels are closed when processing completes.
func StreamRows[T any](ctx context.Context, r io.Reader) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := xml.NewDecoder(r)
		decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
			enc, err := htmlindex.Get(charset)
			if err != nil {
				return nil, eris.Wrapf(err, "fetcher: unsupported charset %q", charset)
			}
			return enc.NewDecoder().Reader(input), nil
		}

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "fetcher: context cancelled")
				return
			}

			tok, err := decoder.Token()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "fetcher: read token")
				return
			}

			se, ok := tok.(xml.StartElement)
			if !ok || se.Name.Local != rowElement {
				continue
			}

			var item T
			if err := decoder.DecodeElement(&item, &se); err != nil {
				errCh <- eris.Wrap(err, "fetcher: decode row")
				return
			}

			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "fetcher: context cancelled")
				return
			}
		}
	}()

	return outCh, errCh
}
