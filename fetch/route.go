package fetch

import (
	"net/url"
	"path"
	"strings"
)

// IndirectHosts serve documents behind viewer pages.
var IndirectHosts = []string{
	"drive.google.com",
	"docs.google.com",
	"dropbox.com",
	"www.dropbox.com",
}

// DocumentExtensions are the file types the direct channel accepts.
var DocumentExtensions = []string{".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx"}

// Route returns the channels to try for rawURL. The rules are checked in
// order and the first match wins:
//
//  1. indirect document host → [indirect-host]
//  2. document extension on the path or any query value → [direct-download, rendered-capture]
//  3. anything else → [rendered-capture]
func Route(rawURL string) []Channel {
	u, err := url.Parse(rawURL)
	if err != nil {
		return []Channel{ChannelRendered}
	}
	if isIndirectHost(u.Hostname()) {
		return []Channel{ChannelIndirect}
	}
	if DocumentExt(u) != "" {
		return []Channel{ChannelDirect, ChannelRendered}
	}
	return []Channel{ChannelRendered}
}

func isIndirectHost(host string) bool {
	host = strings.ToLower(host)
	for _, h := range IndirectHosts {
		if host == h {
			return true
		}
	}
	return false
}

// DocumentExt returns the document extension ending u's path or one of
// its query values, or "".
func DocumentExt(u *url.URL) string {
	if ext := docExt(u.Path); ext != "" {
		return ext
	}
	for _, vs := range u.Query() {
		for _, v := range vs {
			if ext := docExt(v); ext != "" {
				return ext
			}
		}
	}
	return ""
}

func docExt(s string) string {
	ext := strings.ToLower(path.Ext(s))
	for _, d := range DocumentExtensions {
		if ext == d {
			return d
		}
	}
	return ""
}
