package resolver

import "os"

// dump writes a raw fetched body to a temp file so a failed extraction can
// be diagnosed against the exact page served. Failures here only log; the
// resolution flow never blocks on a dump.
func (r *Resolver) dump(label string, body []byte) {
	f, err := os.CreateTemp(r.cfg.DumpDir, "openshelf-"+label+"-*.html")
	if err != nil {
		r.logger.Debug().Err(err).Msg("skipping raw body dump")
		return
	}
	defer f.Close()

	if _, err := f.Write(body); err != nil {
		r.logger.Debug().Err(err).Str("path", f.Name()).Msg("raw body dump failed")
		return
	}
	r.logger.Debug().Str("path", f.Name()).Str("label", label).Msg("dumped raw page body")
}
