package domain

// Download is the immutable-after-probe descriptor for one target file
// (spec §3 "Download descriptor"). Once fixed, Destination and StagingDir
// are stable for the life of the download and across resume.
type Download struct {
	URL         string
	Filename    string
	Destination string
	StagingDir  string

	TotalBytes     int64 // -1 when the server withheld Content-Length
	AcceptsRanges  bool
	ContentType    string
	CallerHeaders  map[string]string
}

// SizeKnown reports whether the probe discovered a Content-Length.
func (d *Download) SizeKnown() bool { return d.TotalBytes >= 0 }
