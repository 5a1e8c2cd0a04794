package safety

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPath       = errors.New("invalid path")
	ErrProtectedPath     = errors.New("protected path")
	ErrContainsProtected = errors.New("target contains a protected path")
	ErrOutsideAllowed    = errors.New("outside allowed roots")
	ErrTraversal         = errors.New("path traversal detected")
	ErrSymlinkEscape     = errors.New("symlink escape detected")
)

// Validator decides whether a subtree may be swept. It is consulted once,
// before the first filesystem mutation.
type Validator struct {
	// AllowedRoots restricts targets to these subtrees. Empty means any
	// target that is not protected.
	AllowedRoots   []string
	ProtectedPaths []string
}

// NewValidator creates a validator with allowed roots and optional additional protected paths
func NewValidator(allowed []string, extraProtected []string) *Validator {
	return &Validator{
		AllowedRoots:   normalizeRoots(allowed),
		ProtectedPaths: defaultProtected(normalizeRoots(extraProtected)),
	}
}

// ValidateTarget returns the cleaned absolute form of path, or a wrapped
// sentinel error when sweeping it is not allowed.
func (v *Validator) ValidateTarget(path string) (string, error) {
	// Raw input first: Clean would hide the ".." segments
	if DetectTraversal(path) {
		return "", fmt.Errorf("%w: %s", ErrTraversal, path)
	}

	p, err := NormalizePath(path)
	if err != nil {
		return "", err
	}

	if err := v.checkProtected(p); err != nil {
		return "", err
	}

	if len(v.AllowedRoots) == 0 {
		return p, nil
	}

	if !IsWithinAllowedRoots(p, v.AllowedRoots) {
		return "", fmt.Errorf("%w: %s", ErrOutsideAllowed, p)
	}

	resolved, err := ResolveParent(p)
	if err != nil {
		// A missing target fails enumeration with a clearer error
		if os.IsNotExist(err) {
			return p, nil
		}
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	if !IsWithinAllowedRoots(resolved, v.AllowedRoots) {
		return "", fmt.Errorf("%w: %s resolves to %s", ErrSymlinkEscape, p, resolved)
	}
	if err := v.checkProtected(resolved); err != nil {
		return "", err
	}

	return p, nil
}

func (v *Validator) checkProtected(p string) error {
	if IsProtectedPath(p, v.ProtectedPaths) {
		return fmt.Errorf("%w: %s", ErrProtectedPath, p)
	}
	if prot, ok := ContainsProtectedPath(p, v.ProtectedPaths); ok {
		return fmt.Errorf("%w: %s contains %s", ErrContainsProtected, p, prot)
	}
	return nil
}

// NormalizePath converts path to absolute, cleaned form
func NormalizePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrInvalidPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	return filepath.Clean(abs), nil
}

// DetectTraversal blocks any ".." segment in raw input
func DetectTraversal(raw string) bool {
	for _, p := range strings.Split(filepath.ToSlash(raw), "/") {
		if p == ".." {
			return true
		}
	}
	return false
}

// IsWithinAllowedRoots checks if path is within any allowed root
func IsWithinAllowedRoots(path string, allowedRoots []string) bool {
	for _, r := range allowedRoots {
		if hasPathPrefix(path, r) {
			return true
		}
	}
	return false
}

// ResolveParent resolves symlinks in every component of cleanAbs except the
// last. The sweep removes a final symlink without following it, so only the
// directories leading to it decide where the removal lands.
func ResolveParent(cleanAbs string) (string, error) {
	dir, base := filepath.Split(cleanAbs)
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolved, base), nil
}

// IsProtectedPath reports whether path is, or lies under, a protected path.
// "/" protects only itself.
func IsProtectedPath(path string, protected []string) bool {
	p := filepath.Clean(path)
	if p == string(os.PathSeparator) {
		return true
	}

	for _, prot := range protected {
		prot = filepath.Clean(prot)
		if prot == string(os.PathSeparator) {
			continue
		}
		if hasPathPrefix(p, prot) {
			return true
		}
	}
	return false
}

// ContainsProtectedPath reports the first protected path that sweeping path
// would remove along with it.
func ContainsProtectedPath(path string, protected []string) (string, bool) {
	p := filepath.Clean(path)
	for _, prot := range protected {
		prot = filepath.Clean(prot)
		if prot != p && hasPathPrefix(prot, p) {
			return prot, true
		}
	}
	return "", false
}

// hasPathPrefix checks if path equals prefix or lies beneath it
func hasPathPrefix(path, prefix string) bool {
	path = filepath.Clean(path)
	prefix = filepath.Clean(prefix)

	if path == prefix {
		return true
	}
	if prefix == string(os.PathSeparator) {
		return filepath.IsAbs(path)
	}
	return strings.HasPrefix(path, prefix+string(os.PathSeparator))
}

// normalizeRoots converts slice of roots to absolute, cleaned paths
func normalizeRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		if strings.TrimSpace(r) == "" {
			continue
		}
		abs, err := filepath.Abs(r)
		if err != nil {
			continue
		}
		out = append(out, filepath.Clean(abs))
	}
	return out
}

// defaultProtected returns the base set of protected paths plus any extras
func defaultProtected(extra []string) []string {
	base := []string{
		"/",
		"/bin",
		"/boot",
		"/dev",
		"/etc",
		"/lib",
		"/lib64",
		"/proc",
		"/sbin",
		"/sys",
		"/usr",
		"/var/lib/treesweep",
		"/etc/treesweep",
	}
	return append(base, extra...)
}
