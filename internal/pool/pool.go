// Package pool implements the descriptor pool: an accumulating, append-only
// index of FileDescriptorSets from which service, method, message, and enum
// descriptors can be looked up by fully-qualified symbol name.
//
// Merges are all-or-nothing. AddFileDescriptorSet either commits every file
// in the incoming set or none of them; a half-merged pool would let later
// lookups silently resolve to a schema the server never fully described.
package pool

import (
	"fmt"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	// Side-effect imports populate protoregistry.GlobalFiles with the
	// well-known types, so a file that depends on google/protobuf/*.proto
	// without the server ever sending that file still resolves.
	_ "google.golang.org/protobuf/types/known/anypb"
	_ "google.golang.org/protobuf/types/known/durationpb"
	_ "google.golang.org/protobuf/types/known/emptypb"
	_ "google.golang.org/protobuf/types/known/fieldmaskpb"
	_ "google.golang.org/protobuf/types/known/structpb"
	_ "google.golang.org/protobuf/types/known/timestamppb"
	_ "google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/JasterV/granc/internal/grpcerr"
)

// Pool accumulates FileDescriptorProtos and exposes symbol, service, and
// method lookups over their closure. Safe for concurrent use.
type Pool struct {
	mu    sync.RWMutex
	files map[string]*descriptorpb.FileDescriptorProto // path -> raw file, first occurrence wins
	order []string                                      // insertion order, for deterministic rebuilds
	index map[string]*desc.FileDescriptor                // path -> built descriptor
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{
		files: make(map[string]*descriptorpb.FileDescriptorProto),
		index: make(map[string]*desc.FileDescriptor),
	}
}

// AddFileDescriptorSet decodes raw as a FileDescriptorSet and merges its
// files into the pool. Files already present (by path) are left untouched;
// the first version of a file ever added to the pool wins, matching the
// reflection client's own first-occurrence tie-break for transitive
// dependencies.
//
// The merge is validated before anything is committed: every dependency
// declared by every file in the resulting union must resolve to another
// file in the union or to a well-known type already registered globally.
// If that check fails, or if the descriptor library itself rejects the
// union, the pool is left exactly as it was.
func (p *Pool) AddFileDescriptorSet(raw []byte) error {
	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(raw, &set); err != nil {
		return &grpcerr.InvalidDescriptorError{Reason: "not a valid FileDescriptorSet", Err: err}
	}
	return p.addFiles(set.GetFile())
}

func (p *Pool) addFiles(incoming []*descriptorpb.FileDescriptorProto) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	candidateFiles := make(map[string]*descriptorpb.FileDescriptorProto, len(p.files))
	for k, v := range p.files {
		candidateFiles[k] = v
	}
	candidateOrder := append([]string(nil), p.order...)

	for _, fd := range incoming {
		path := fd.GetName()
		if path == "" {
			return &grpcerr.InvalidDescriptorError{Reason: "file descriptor missing a name"}
		}
		if _, exists := candidateFiles[path]; exists {
			continue
		}
		candidateFiles[path] = fd
		candidateOrder = append(candidateOrder, path)
	}

	if err := checkDependenciesSatisfied(candidateFiles); err != nil {
		return err
	}

	rebuilt, err := rebuildIndex(candidateFiles, candidateOrder)
	if err != nil {
		return &grpcerr.InvalidDescriptorError{Reason: "descriptor set failed to parse", Err: err}
	}

	p.files = candidateFiles
	p.order = candidateOrder
	p.index = rebuilt
	return nil
}

// checkDependenciesSatisfied walks every file's declared dependency list
// and fails with MissingDependencyError naming the exact file and path
// that can't be resolved, rather than surfacing whatever opaque error the
// descriptor library would produce for the same condition.
func checkDependenciesSatisfied(files map[string]*descriptorpb.FileDescriptorProto) error {
	for path, fd := range files {
		for _, dep := range fd.GetDependency() {
			if _, ok := files[dep]; ok {
				continue
			}
			if _, err := protoregistry.GlobalFiles.FindFileByPath(dep); err == nil {
				continue
			}
			return &grpcerr.MissingDependencyError{File: path, Dependency: dep}
		}
	}
	return nil
}

// rebuildIndex constructs desc.FileDescriptors for every file in order,
// feeding already-built dependencies to each later file so cross-file
// type references resolve.
func rebuildIndex(files map[string]*descriptorpb.FileDescriptorProto, order []string) (map[string]*desc.FileDescriptor, error) {
	built := make(map[string]*desc.FileDescriptor, len(files))

	var resolve func(path string, seen map[string]bool) (*desc.FileDescriptor, error)
	resolve = func(path string, seen map[string]bool) (*desc.FileDescriptor, error) {
		if fd, ok := built[path]; ok {
			return fd, nil
		}
		if seen[path] {
			return nil, fmt.Errorf("dependency cycle involving %q", path)
		}
		seen[path] = true

		raw, ok := files[path]
		if !ok {
			// Not in the set: fall back to a well-known type registered globally.
			if _, err := protoregistry.GlobalFiles.FindFileByPath(path); err == nil {
				fd, err := desc.LoadFileDescriptor(path)
				if err != nil {
					return nil, fmt.Errorf("loading %q: %w", path, err)
				}
				built[path] = fd
				return fd, nil
			}
			return nil, fmt.Errorf("unresolved dependency %q", path)
		}

		deps := make([]*desc.FileDescriptor, 0, len(raw.GetDependency()))
		for _, dep := range raw.GetDependency() {
			depFD, err := resolve(dep, seen)
			if err != nil {
				return nil, err
			}
			deps = append(deps, depFD)
		}

		fd, err := desc.CreateFileDescriptor(raw, deps...)
		if err != nil {
			return nil, fmt.Errorf("building %q: %w", path, err)
		}
		built[path] = fd
		return fd, nil
	}

	for _, path := range order {
		if _, err := resolve(path, map[string]bool{}); err != nil {
			return nil, err
		}
	}
	return built, nil
}

// GetDescriptorBySymbol looks up a message or enum descriptor by its
// fully-qualified name across every file in the pool.
func (p *Pool) GetDescriptorBySymbol(fqName string) (desc.Descriptor, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, fd := range p.index {
		if msg := fd.FindMessage(fqName); msg != nil {
			return msg, true
		}
		if en := fd.FindEnum(fqName); en != nil {
			return en, true
		}
	}
	return nil, false
}

// ListServices returns the fully-qualified names of every service the pool
// knows about.
func (p *Pool) ListServices() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []string
	for _, fd := range p.index {
		for _, svc := range fd.GetServices() {
			out = append(out, svc.GetFullyQualifiedName())
		}
	}
	return out
}

// GetService resolves a service descriptor by fully-qualified name.
func (p *Pool) GetService(name string) (*desc.ServiceDescriptor, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, fd := range p.index {
		if svc := fd.FindService(name); svc != nil {
			return svc, true
		}
	}
	return nil, false
}

// GetMethod resolves a method descriptor by service and method name.
func (p *Pool) GetMethod(service, method string) (*desc.MethodDescriptor, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, fd := range p.index {
		svc := fd.FindService(service)
		if svc == nil {
			continue
		}
		m := svc.FindMethodByName(method)
		if m == nil {
			return nil, false
		}
		return m, true
	}
	return nil, false
}

// HasFile reports whether the pool already has a file at this path, used
// by the reflection client to avoid re-requesting dependencies the pool
// already satisfies from an earlier call.
func (p *Pool) HasFile(path string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.files[path]
	return ok
}
