// Package scriptref derives the stable integer handles ("ScriptRef") the
// debug adapter uses wherever DAP asks for a sourceReference, and parses the
// "archive:path" qualified path grammar (spec.md §3, §6).
package scriptref

import (
	"hash/fnv"
	"path"
	"strings"
)

// Ref is a stable non-negative handle derived from a qualified script path.
type Ref int64

// ScriptExtensions are the lowercased file extensions (without the leading
// dot) that mark a path as a script (spec.md §6).
var ScriptExtensions = map[string]bool{
	"zs":  true,
	"zsc": true,
	"zc":  true,
	"acs": true,
	"dec": true,
}

// ScriptBasenames are case-sensitive-looking-but-actually-checked-as-is
// basenames (without extension) that mark a path as a script regardless of
// extension.
var ScriptBasenames = map[string]bool{
	"DECORATE": true,
	"ACS":      true,
}

// IsScriptPath reports whether path looks like a script file, per spec.md
// §6: lowercased extension in the known set, or a recognized bare basename.
func IsScriptPath(p string) bool {
	base := path.Base(p)
	ext := strings.TrimPrefix(path.Ext(base), ".")
	if ScriptExtensions[strings.ToLower(ext)] {
		return true
	}
	nameNoExt := strings.TrimSuffix(base, path.Ext(base))
	return ScriptBasenames[nameNoExt] || ScriptBasenames[base]
}

// Qualify joins an archive name and a container-relative path into the
// "archive:path" grammar. Either side may be empty.
func Qualify(archive, relPath string) string {
	if archive == "" {
		return relPath
	}
	return archive + ":" + relPath
}

// Split parses a qualified path into its archive and container-relative
// parts. If there is no ':' the archive is empty. Only the first ':' is
// treated as the separator, since Windows-style paths or in-archive paths
// may themselves contain colons beyond the first.
func Split(qualified string) (archive, relPath string) {
	idx := strings.IndexByte(qualified, ':')
	if idx < 0 {
		return "", qualified
	}
	return qualified[:idx], qualified[idx+1:]
}

// Derive computes the ScriptRef for a qualified path. It is a pure function
// of the lowercased string (spec.md invariant I1 / §8 law 1): equal paths
// (case-insensitively) always yield equal, positive refs; an empty path
// yields the zero ref.
//
// The result is kept within 31 bits: the breakpoint id scheme (spec.md §3)
// packs a ScriptRef into the high 32 bits of a 64-bit breakpoint id
// alongside a line number in the low 32 bits, so the ref itself must leave
// that bit laid out without sign trouble.
func Derive(qualified string) Ref {
	if qualified == "" {
		return 0
	}
	lowered := strings.ToLower(qualified)
	h := fnv.New32a()
	_, _ = h.Write([]byte(lowered))
	ref := Ref(h.Sum32() & 0x7FFFFFFF)
	if ref == 0 {
		ref = 1
	}
	return ref
}

// Basename returns the file name component of a container-relative path.
func Basename(relPath string) string {
	return path.Base(relPath)
}

// BreakpointID computes the stable 64-bit breakpoint id for a (ScriptRef,
// line) pair (spec.md §3 "Id scheme"). Stable across repeated calls and
// across re-sets of the same (ref, line) — spec.md §8 law 2.
func BreakpointID(ref Ref, line int) int64 {
	return (int64(ref) << 32) | int64(uint32(line))
}
