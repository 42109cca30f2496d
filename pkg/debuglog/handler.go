package debuglog

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// SpoolHandler prints every posted log entry to out.
func SpoolHandler(out io.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bb := bytes.NewBuffer(nil)
		if _, err := io.Copy(bb, r.Body); err != nil {
			printErr(out, err)
		}
		if err := r.Body.Close(); err != nil {
			printErr(out, err)
		}
		fmt.Fprint(out, bb.String())
	}
}

func printErr(out io.Writer, e error) {
	fmt.Fprintf(out, "Error in spooler: %v\n", e)
}
