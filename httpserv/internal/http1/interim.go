package http1

import (
	"fmt"
	"io"
)

// WriteContinue writes an interim 100 Continue response.
func WriteContinue(w io.Writer) error {
	_, err := fmt.Fprint(w, "HTTP/1.1 100 Continue\r\n\r\n")
	return err
}
