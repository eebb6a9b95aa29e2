package storage

import (
	"encoding/json"
	"net/url"
	"path"
	"strings"
)

var rootPrefixes = []string{"storage/", "public/"}

// NormalizePath reduces a stored path, public URL or legacy disk path to the
// canonical storage-relative form. It strips scheme and host, the known root
// prefixes and leading slashes until nothing changes, so the result is a
// fixed point. ok is false for blank input and for paths escaping the root.
func NormalizePath(input string) (string, bool) {
	p := strings.TrimSpace(strings.ReplaceAll(input, "\\", "/"))
	if p == "" {
		return "", false
	}

	// Every step only shortens p, so the loop terminates.
	for {
		prev := p
		p = stripSchemeHost(p)
		p = strings.TrimLeft(p, "/")
		for _, prefix := range rootPrefixes {
			if strings.HasPrefix(strings.ToLower(p), prefix) {
				p = p[len(prefix):]
			}
		}
		p = strings.TrimLeft(p, "/")
		if p != "" {
			p = strings.TrimPrefix(path.Clean("/"+p), "/")
		}
		if p == prev {
			break
		}
	}

	if p == "" || p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", false
	}
	return p, true
}

func stripSchemeHost(p string) string {
	lower := strings.ToLower(p)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return p
	}
	u, err := url.Parse(p)
	if err != nil {
		// Drop everything up to the first slash after the host.
		rest := p[strings.Index(p, "//")+2:]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return rest[i:]
		}
		return ""
	}
	return u.Path
}

// File is one entry of a decoded multi-file list.
type File struct {
	Name string `json:"name"`
	Path string `json:"path"`
	URL  string `json:"url"`
}

// DecodeFileList decodes a JSON-array column whose items are plain path
// strings or objects with path/url/name keys. Anything malformed yields nil.
func DecodeFileList(encoded any) []File {
	raw := rawJSON(encoded)
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		// Some rows hold the array double-encoded as a JSON string.
		var inner string
		if json.Unmarshal(raw, &inner) != nil || json.Unmarshal([]byte(inner), &items) != nil {
			return nil
		}
	}

	files := make([]File, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if p, ok := NormalizePath(s); ok {
				files = append(files, File{Name: path.Base(p), Path: p})
			}
			continue
		}
		var obj struct {
			Name string `json:"name"`
			Path string `json:"path"`
			URL  string `json:"url"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		src := obj.Path
		if strings.TrimSpace(src) == "" {
			src = obj.URL
		}
		p, ok := NormalizePath(src)
		if !ok {
			continue
		}
		name := strings.TrimSpace(obj.Name)
		if name == "" {
			name = path.Base(p)
		}
		files = append(files, File{Name: name, Path: p})
	}
	return files
}

// MergeAppend appends newPaths to the encoded list, de-duplicating by
// canonical path in first-seen order, and re-encodes as a JSON string array.
func MergeAppend(existing any, newPaths []string) (string, error) {
	merged := make([]string, 0)
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		merged = append(merged, p)
	}

	for _, f := range DecodeFileList(existing) {
		add(f.Path)
	}
	for _, np := range newPaths {
		if p, ok := NormalizePath(np); ok {
			add(p)
		}
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// CollectPaths gathers single path values and every path of the encoded lists
// into one de-duplicated canonical set, in first-seen order.
func CollectPaths(singles []string, lists ...any) []string {
	out := make([]string, 0, len(singles))
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, s := range singles {
		if p, ok := NormalizePath(s); ok {
			add(p)
		}
	}
	for _, l := range lists {
		for _, f := range DecodeFileList(l) {
			add(f.Path)
		}
	}
	return out
}

func rawJSON(v any) []byte {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []byte(strings.TrimSpace(t))
	case *string:
		if t == nil {
			return nil
		}
		return []byte(strings.TrimSpace(*t))
	case []byte:
		return t
	case json.RawMessage:
		return t
	case []string:
		b, _ := json.Marshal(t)
		return b
	case []any:
		b, _ := json.Marshal(t)
		return b
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		return b
	}
}
