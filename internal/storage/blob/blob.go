// Package blob implements the blob-storage contract (spec.md §6): a
// namespaced content store for large oplog payloads and initial
// filesystems, with put/get/list/copy operations and path safety.
package blob

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/oriys/workerexec/internal/domain"
)

// NamespaceKind discriminates the five reserved blob namespaces.
type NamespaceKind string

const (
	CompilationCache  NamespaceKind = "CompilationCache"
	CustomStorage     NamespaceKind = "CustomStorage"
	OplogPayload      NamespaceKind = "OplogPayload"
	CompressedOplog   NamespaceKind = "CompressedOplog"
	InitialFileSystem NamespaceKind = "InitialFileSystem"
)

// Namespace is the namespace-selector sum type. Only the fields relevant to
// Kind are populated; Root returns the fully-qualified namespace root used
// as a path prefix by every backend.
type Namespace struct {
	Kind      NamespaceKind
	Account   domain.AccountId
	Worker    string
	Component string
	Level     string
}

func NewOplogPayloadNamespace(account domain.AccountId, worker string) Namespace {
	return Namespace{Kind: OplogPayload, Account: account, Worker: worker}
}

func NewCustomStorageNamespace(account domain.AccountId) Namespace {
	return Namespace{Kind: CustomStorage, Account: account}
}

func NewCompressedOplogNamespace(account domain.AccountId, component, level string) Namespace {
	return Namespace{Kind: CompressedOplog, Account: account, Component: component, Level: level}
}

func NewInitialFileSystemNamespace(account domain.AccountId) Namespace {
	return Namespace{Kind: InitialFileSystem, Account: account}
}

func NewCompilationCacheNamespace() Namespace {
	return Namespace{Kind: CompilationCache}
}

// Root returns the namespace's path prefix, e.g. "oplog_payload/acct/w1".
func (n Namespace) Root() string {
	switch n.Kind {
	case CompilationCache:
		return "compilation_cache"
	case CustomStorage:
		return path.Join("custom_storage", string(n.Account))
	case OplogPayload:
		return path.Join("oplog_payload", string(n.Account), n.Worker)
	case CompressedOplog:
		return path.Join("compressed_oplog", string(n.Account), n.Component, n.Level)
	case InitialFileSystem:
		return path.Join("initial_file_system", string(n.Account))
	default:
		return "unknown"
	}
}

func (n Namespace) String() string { return string(n.Kind) + ":" + n.Root() }

// Metadata is returned by GetMetadata.
type Metadata struct {
	Size           int64
	LastModifiedAt int64 // unix millis
}

// ExistsResult is the tri-state result of Exists.
type ExistsResult int

const (
	DoesNotExist ExistsResult = iota
	IsFile
	IsDirectory
)

// ErrPathEscape is returned when a path attempts to escape its namespace via
// "..". No backend accepts such a path.
var ErrPathEscape = errors.New("blob: path escapes namespace root")

// CleanPath validates and normalizes a namespace-relative path, rejecting
// absolute-escape attempts via "..".
func CleanPath(p string) (string, error) {
	cleaned := path.Clean(p)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrPathEscape
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "." {
		cleaned = ""
	}
	return cleaned, nil
}

// Storage is the blob-storage contract. Paths passed in are namespace
// relative; implementations MUST reject paths that escape the namespace.
type Storage interface {
	GetRaw(ctx context.Context, ns Namespace, relPath string) ([]byte, bool, error)
	PutRaw(ctx context.Context, ns Namespace, relPath string, data []byte) error
	GetMetadata(ctx context.Context, ns Namespace, relPath string) (Metadata, bool, error)
	Delete(ctx context.Context, ns Namespace, relPath string) error
	CreateDir(ctx context.Context, ns Namespace, relPath string) error
	ListDir(ctx context.Context, ns Namespace, relPath string) ([]string, error)
	DeleteDir(ctx context.Context, ns Namespace, relPath string) error
	Exists(ctx context.Context, ns Namespace, relPath string) (ExistsResult, error)
	Copy(ctx context.Context, ns Namespace, from, to string) error
	CopyDirContents(ctx context.Context, fromNs, toNs Namespace, from, to string) error
}
