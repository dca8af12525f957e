package bridge

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/coreos/go-semver/semver"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/hostfunc"
	"github.com/wippyai/wasm-bridge/memory"
)

// versionExport is the well-known export a module implements to declare
// which revision of the host interface it was built against. It takes
// no arguments and returns a packed pointer+length word addressing a
// UTF-8 semver string in guest memory.
const versionExport = "interface_version"

// VersionInfo is the result of probing a module for its declared
// interface version.
type VersionInfo struct {
	// Version is the parsed semantic version, nil for legacy modules.
	Version *semver.Version

	// Raw is the string the module returned, NUL padding stripped.
	Raw string

	// Legacy marks a module that predates the version export. Such
	// modules stay callable; the caller decides what to assume.
	Legacy bool
}

// ProbeVersion reports the interface version module raw declares. The
// result is cached on the compiled artifact, so repeated probes of the
// same bytes run the export once. A module without the export is
// reported as legacy, not as an error.
func (b *Bridge) ProbeVersion(ctx context.Context, raw []byte) (*VersionInfo, error) {
	if err := b.active(); err != nil {
		return nil, err
	}
	h, err := b.cache.getOrCompile(ctx, raw)
	if err != nil {
		return nil, err
	}
	defer h.Release()

	if vi := h.cachedVersion(); vi != nil {
		out := *vi
		return &out, nil
	}
	vi, err := b.probe(ctx, h)
	if err != nil {
		return nil, err
	}
	h.storeVersion(vi)
	out := *vi
	return &out, nil
}

// probe runs the version export on a throwaway instance. The instance
// never enters the pool: the export may allocate, and a probe has no
// reason to pay for a baseline snapshot.
func (b *Bridge) probe(ctx context.Context, h *Handle) (*VersionInfo, error) {
	art := h.Artifact()

	var info engine.ExportInfo
	found := false
	for _, e := range art.ExportedFunctions() {
		if e.Name == versionExport {
			info, found = e, true
			break
		}
	}
	if !found {
		return &VersionInfo{Legacy: true}, nil
	}

	sig := hostfunc.Signature{Params: info.Params, Results: info.Results}
	want := hostfunc.Signature{Results: []hostfunc.ValueType{hostfunc.I64}}
	if !sig.Equal(want) {
		return nil, errors.InvalidInput(errors.PhaseProbe,
			fmt.Sprintf("export %q has signature %s, want %s", versionExport, sig, want))
	}

	if err := b.bindHosts(ctx); err != nil {
		return nil, err
	}
	if err := b.hosts.CheckImports(art.ImportedFunctions()); err != nil {
		return nil, err
	}

	inst, err := art.Instantiate(ctx)
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	defer inst.Close(ctx)

	results, err := inst.Invoke(ctx, versionExport, nil)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseProbe, errors.KindInvalidData, err,
			"interface_version call failed")
	}

	ptr, length := hostfunc.UnpackPtrLen(results[0])
	if length == 0 {
		return nil, errors.InvalidData(errors.PhaseProbe, nil,
			"interface_version returned an empty region")
	}
	mem := inst.Memory()
	if mem == nil {
		return nil, errors.InvalidData(errors.PhaseProbe, nil,
			"interface_version returned a region but the module declares no memory")
	}
	buf, err := memory.NewManager(mem, 0, 0).Read(ptr, length)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseProbe, errors.KindInvalidData, err,
			"interface_version returned an out-of-range region")
	}

	raw := strings.TrimRight(string(buf), "\x00")
	if raw == "" || !utf8.ValidString(raw) {
		return nil, errors.InvalidData(errors.PhaseProbe, nil,
			"interface_version returned a string that is not valid UTF-8")
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseProbe, errors.KindInvalidData, err,
			fmt.Sprintf("version %q is not semver", raw))
	}
	return &VersionInfo{Version: v, Raw: raw}, nil
}
