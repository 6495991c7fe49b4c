package repo

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/opensuse-zypp/zyppcore/pkg/variables"
)

// This file implements the small, deterministic INI reader/writer spec.md
// §9 calls for: "the core needs only a small deterministic INI reader/writer
// with support for multi-line continuations and section=alias semantics;
// keep it internal rather than depending on a general parser." It knows
// nothing about repo/service semantics beyond the raw section/entry shape;
// toRepoInfo/fromRepoInfo (and their service equivalents) do that mapping.

// rawEntry is one key, possibly with multiple values: a single "key=value"
// line has one value; a key followed by indented continuation lines (used
// for baseurl= and gpgkey=) accumulates one value per line.
type rawEntry struct {
	key    string
	values []string
}

// rawSection is one "[alias]" block with its entries in file order.
type rawSection struct {
	name    string
	entries []*rawEntry
}

func (s *rawSection) get(key string) (string, bool) {
	for _, e := range s.entries {
		if e.key == key && len(e.values) > 0 {
			return e.values[len(e.values)-1], true
		}
	}
	return "", false
}

func (s *rawSection) getAll(key string) []string {
	var out []string
	for _, e := range s.entries {
		if e.key == key {
			out = append(out, e.values...)
		}
	}
	return out
}

func (s *rawSection) set(key string, value string) {
	for _, e := range s.entries {
		if e.key == key {
			e.values = []string{value}
			return
		}
	}
	s.entries = append(s.entries, &rawEntry{key: key, values: []string{value}})
}

func (s *rawSection) setAll(key string, values []string) {
	for i, e := range s.entries {
		if e.key == key {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	if len(values) == 0 {
		return
	}
	s.entries = append(s.entries, &rawEntry{key: key, values: values})
}

// parseINI performs the low-level tokenization: sections, key=value,
// multi-line continuation (an indented line following a key is another
// value for that key), and comment lines (';' or '#').
func parseINI(r io.Reader) ([]*rawSection, error) {
	var sections []*rawSection
	var cur *rawSection
	var curEntry *rawEntry

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		line := strings.TrimRight(raw, "\r")

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			curEntry = nil
			continue
		}
		if strings.HasPrefix(trimmed, ";") || strings.HasPrefix(trimmed, "#") {
			curEntry = nil
			continue
		}

		// Continuation line: starts with whitespace and we have an open
		// multi-line entry.
		if (line[0] == ' ' || line[0] == '\t') && curEntry != nil {
			curEntry.values = append(curEntry.values, trimmed)
			continue
		}

		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			name := strings.TrimSuffix(strings.TrimPrefix(trimmed, "["), "]")
			cur = &rawSection{name: name}
			sections = append(sections, cur)
			curEntry = nil
			continue
		}

		eq := strings.IndexByte(trimmed, '=')
		if eq < 0 {
			// Not a recognized line shape; ignore for robustness.
			curEntry = nil
			continue
		}
		if cur == nil {
			return nil, fmt.Errorf("ini: line %d: key=value outside any section", lineNo)
		}
		key := strings.TrimSpace(trimmed[:eq])
		value := strings.TrimSpace(trimmed[eq+1:])

		entry := &rawEntry{key: key}
		if value != "" {
			entry.values = []string{value}
		}
		cur.entries = append(cur.entries, entry)
		curEntry = entry
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return sections, nil
}

// writeINI renders sections back to INI text. Multi-valued entries are
// emitted as "key=first" followed by indented continuation lines for the
// remaining values, matching spec.md §6's "baseurl= (multi-line;
// continuation lines indented)".
func writeINI(w io.Writer, sections []*rawSection) error {
	bw := bufio.NewWriter(w)
	for i, s := range sections {
		if i > 0 {
			if _, err := fmt.Fprintln(bw); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(bw, "[%s]\n", s.name); err != nil {
			return err
		}
		for _, e := range s.entries {
			if len(e.values) == 0 {
				if _, err := fmt.Fprintf(bw, "%s=\n", e.key); err != nil {
					return err
				}
				continue
			}
			if _, err := fmt.Fprintf(bw, "%s=%s\n", e.key, e.values[0]); err != nil {
				return err
			}
			for _, v := range e.values[1:] {
				if _, err := fmt.Fprintf(bw, "        %s\n", v); err != nil {
					return err
				}
			}
		}
	}
	return bw.Flush()
}

// ParseRepoFile reads a ".repo" file (one or more "[alias]" sections) and
// returns one RepoInfo per section, in file order.
func ParseRepoFile(r io.Reader, resolver *variables.Resolver) ([]RepoInfo, error) {
	sections, err := parseINI(r)
	if err != nil {
		return nil, err
	}
	repos := make([]RepoInfo, 0, len(sections))
	for _, s := range sections {
		ri, err := ToRepoInfo(s, resolver)
		if err != nil {
			return nil, err
		}
		repos = append(repos, ri)
	}
	return repos, nil
}

// WriteRepoFile renders repos as a ".repo" file, one section per repo.
func WriteRepoFile(w io.Writer, repos []RepoInfo) error {
	sections := make([]*rawSection, len(repos))
	for i, r := range repos {
		sections[i] = FromRepoInfo(r)
	}
	return writeINI(w, sections)
}

// ParseServiceFile reads a ".service" file and returns one ServiceInfo per
// section, in file order.
func ParseServiceFile(r io.Reader, resolver *variables.Resolver) ([]ServiceInfo, error) {
	sections, err := parseINI(r)
	if err != nil {
		return nil, err
	}
	services := make([]ServiceInfo, 0, len(sections))
	for _, s := range sections {
		svc, err := ToServiceInfo(s, resolver)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, nil
}

// WriteServiceFile renders services as a ".service" file.
func WriteServiceFile(w io.Writer, services []ServiceInfo) error {
	sections := make([]*rawSection, len(services))
	for i, svc := range services {
		sections[i] = FromServiceInfo(svc)
	}
	return writeINI(w, sections)
}

func parseBool01(s string, def bool) bool {
	switch s {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return def
	}
}

func boolTo01(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ToRepoInfo maps a raw INI section (section name = alias) to a RepoInfo.
// Variable-substituted views are wired up against resolver if non-nil.
func ToRepoInfo(s *rawSection, resolver *variables.Resolver) (RepoInfo, error) {
	r := New(s.name)
	if v, ok := s.get("name"); ok {
		r.Name = v
	}
	if v, ok := s.get("enabled"); ok {
		r.Enabled = parseBool01(v, true)
	}
	if v, ok := s.get("autorefresh"); ok {
		r.Autorefresh = parseBool01(v, true)
	}
	if v, ok := s.get("priority"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			r.Priority = n
		}
	}
	if v, ok := s.get("type"); ok {
		r.Type = ParseType(v)
	}
	if v, ok := s.get("path"); ok {
		r.Path = v
	}
	if v, ok := s.get("service"); ok {
		r.Service = v
	}
	if v, ok := s.get("targetdistribution"); ok {
		r.TargetDistribution = v
	}
	for _, u := range s.getAll("baseurl") {
		r.BaseURLs = append(r.BaseURLs, variables.NewPair(u, resolver))
	}
	if v, ok := s.get("mirrorlist"); ok {
		r.MirrorListURL = variables.NewPair(v, resolver)
		r.MirrorKind = MirrorKindMirrorlist
	}
	if v, ok := s.get("metalink"); ok {
		r.MirrorListURL = variables.NewPair(v, resolver)
		r.MirrorKind = MirrorKindMetalink
	}
	for _, u := range s.getAll("gpgkey") {
		r.GPGKeyURLs = append(r.GPGKeyURLs, variables.NewPair(u, resolver))
	}
	if v, ok := s.get("gpgcheck"); ok {
		r.GPGCheck = ParseTriState(v)
	}
	if v, ok := s.get("repo_gpgcheck"); ok {
		r.RepoGPGCheck = ParseTriState(v)
	}
	if v, ok := s.get("pkg_gpgcheck"); ok {
		r.PkgGPGCheck = ParseTriState(v)
	}
	if v, ok := s.get("keeppackages"); ok {
		r.KeepPackages = parseBool01(v, false)
	}
	return r, nil
}

// FromRepoInfo renders a RepoInfo into a raw INI section.
// metalink= and mirrorlist= are mutually exclusive in emission, per
// spec.md §6; MirrorKind decides which key is written.
func FromRepoInfo(r RepoInfo) *rawSection {
	s := &rawSection{name: r.Alias}
	s.set("name", r.Name)
	s.set("enabled", boolTo01(r.Enabled))
	s.set("autorefresh", boolTo01(r.Autorefresh))
	if r.Priority != 0 {
		s.set("priority", strconv.Itoa(r.Priority))
	}
	if r.Type != TypeNone {
		s.set("type", string(r.Type))
	}
	if r.Path != "" {
		s.set("path", r.Path)
	}
	if r.Service != "" {
		s.set("service", r.Service)
	}
	if r.TargetDistribution != "" {
		s.set("targetdistribution", r.TargetDistribution)
	}
	if len(r.BaseURLs) > 0 {
		urls := make([]string, len(r.BaseURLs))
		for i, p := range r.BaseURLs {
			urls[i] = p.Raw
		}
		s.setAll("baseurl", urls)
	}
	if r.MirrorListURL.Raw != "" {
		switch r.MirrorKind {
		case MirrorKindMetalink:
			s.set("metalink", r.MirrorListURL.Raw)
		default:
			s.set("mirrorlist", r.MirrorListURL.Raw)
		}
	}
	if len(r.GPGKeyURLs) > 0 {
		keys := make([]string, len(r.GPGKeyURLs))
		for i, p := range r.GPGKeyURLs {
			keys[i] = p.Raw
		}
		s.setAll("gpgkey", keys)
	}
	if r.GPGCheck != Indeterminate {
		s.set("gpgcheck", boolTo01(r.GPGCheck == Yes))
	}
	if r.RepoGPGCheck != Indeterminate {
		s.set("repo_gpgcheck", boolTo01(r.RepoGPGCheck == Yes))
	}
	if r.PkgGPGCheck != Indeterminate {
		s.set("pkg_gpgcheck", boolTo01(r.PkgGPGCheck == Yes))
	}
	if r.KeepPackages {
		s.set("keeppackages", boolTo01(true))
	}
	return s
}

// ToServiceInfo maps a raw INI section to a ServiceInfo.
func ToServiceInfo(s *rawSection, resolver *variables.Resolver) (ServiceInfo, error) {
	svc := NewService(s.name)
	if v, ok := s.get("name"); ok {
		svc.Name = v
	}
	if v, ok := s.get("enabled"); ok {
		svc.Enabled = parseBool01(v, true)
	}
	if v, ok := s.get("autorefresh"); ok {
		svc.Autorefresh = parseBool01(v, true)
	}
	if v, ok := s.get("url"); ok {
		svc.URL = v
	}
	if v, ok := s.get("type"); ok {
		svc.Type = v
	}
	if v, ok := s.get("ttl"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			svc.TTL = time.Duration(n) * time.Second
		}
	}
	if v, ok := s.get("lrf"); ok {
		svc.LastRefresh = parseLRF(v)
	}
	if v, ok := s.get("repostoenable"); ok {
		for _, a := range splitCommaList(v) {
			svc.ReposToEnable[a] = true
		}
	}
	if v, ok := s.get("repostodisable"); ok {
		for _, a := range splitCommaList(v) {
			svc.ReposToDisable[a] = true
		}
	}
	// repo_<alias>_enabled / _autorefresh / _priority entries.
	states := map[string]RepoState{}
	for _, e := range s.entries {
		alias, field, ok := splitRepoStateKey(e.key)
		if !ok || len(e.values) == 0 {
			continue
		}
		st := states[alias]
		val := e.values[len(e.values)-1]
		switch field {
		case "enabled":
			st.Enabled = parseBool01(val, true)
		case "autorefresh":
			st.Autorefresh = parseBool01(val, true)
		case "priority":
			if n, err := strconv.Atoi(val); err == nil {
				st.Priority = n
			}
		}
		states[alias] = st
	}
	svc.RepoStates = states
	return svc, nil
}

// FromServiceInfo renders a ServiceInfo into a raw INI section.
func FromServiceInfo(svc ServiceInfo) *rawSection {
	s := &rawSection{name: svc.Alias}
	s.set("name", svc.Name)
	s.set("enabled", boolTo01(svc.Enabled))
	s.set("autorefresh", boolTo01(svc.Autorefresh))
	s.set("url", svc.URL)
	if svc.Type != "" {
		s.set("type", svc.Type)
	}
	s.set("ttl", strconv.Itoa(int(svc.TTL.Seconds())))
	if !svc.LastRefresh.IsZero() {
		s.set("lrf", formatLRF(svc.LastRefresh))
	}
	if len(svc.ReposToEnable) > 0 {
		s.set("repostoenable", joinSortedKeys(svc.ReposToEnable))
	}
	if len(svc.ReposToDisable) > 0 {
		s.set("repostodisable", joinSortedKeys(svc.ReposToDisable))
	}
	aliases := make([]string, 0, len(svc.RepoStates))
	for a := range svc.RepoStates {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)
	for _, a := range aliases {
		st := svc.RepoStates[a]
		s.set(fmt.Sprintf("repo_%s_enabled", a), boolTo01(st.Enabled))
		s.set(fmt.Sprintf("repo_%s_autorefresh", a), boolTo01(st.Autorefresh))
		s.set(fmt.Sprintf("repo_%s_priority", a), strconv.Itoa(st.Priority))
	}
	return s
}

func splitRepoStateKey(key string) (alias, field string, ok bool) {
	if !strings.HasPrefix(key, "repo_") {
		return "", "", false
	}
	rest := strings.TrimPrefix(key, "repo_")
	for _, suffix := range []string{"_enabled", "_autorefresh", "_priority"} {
		if strings.HasSuffix(rest, suffix) {
			return strings.TrimSuffix(rest, suffix), strings.TrimPrefix(suffix, "_"), true
		}
	}
	return "", "", false
}

func splitCommaList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func joinSortedKeys(m map[string]bool) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

// parseLRF/formatLRF encode ServiceInfo.LastRefresh as a Unix timestamp,
// matching the plain integer "lrf=" value spec.md §6 describes.
func parseLRF(v string) time.Time {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}

func formatLRF(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
