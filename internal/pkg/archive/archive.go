// Package archive packs a project directory into an in-memory tar.gz.
package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
	"github.com/spf13/afero"
)

const IgnoreFile = ".dockerignore"

type Options struct {
	// RespectIgnoreFile skips paths matched by the project's .dockerignore.
	RespectIgnoreFile bool
}

type Archive struct {
	Data  []byte
	Files []string
}

func (a *Archive) Size() int {
	return len(a.Data)
}

// Build walks root in lexical order and adds every file under a name relative
// to root. Directories get no entries of their own; tar extraction creates them.
// Symlinks to files are stored as links, symlinks to directories are skipped.
// Archives of an unchanged tree are byte-identical.
func Build(fs afero.Fs, root string, opts Options) (*Archive, error) {
	info, err := fs.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	matcher, err := loadMatcher(fs, root, opts)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	var files []string

	err = afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || info.Mode()&os.ModeSocket != 0 {
			return nil
		}
		// links to directories are neither followed nor stored
		if info.Mode()&os.ModeSymlink != 0 {
			if target, err := fs.Stat(path); err == nil && target.IsDir() {
				return nil
			}
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if matcher != nil {
			skip, err := matcher.MatchesOrParentMatches(rel)
			if err != nil {
				return err
			}
			if skip {
				return nil
			}
		}

		name := filepath.ToSlash(rel)
		if err := addEntry(fs, tw, path, name, info); err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
		files = append(files, name)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}

	return &Archive{Data: buf.Bytes(), Files: files}, nil
}

func addEntry(fs afero.Fs, tw *tar.Writer, path, name string, info os.FileInfo) error {
	link := ""
	if info.Mode()&os.ModeSymlink != 0 {
		reader, ok := fs.(afero.LinkReader)
		if !ok {
			return fmt.Errorf("filesystem cannot read symlinks")
		}
		target, err := reader.ReadlinkIfPossible(path)
		if err != nil {
			return err
		}
		link = target
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Uname = ""
	hdr.Gname = ""
	hdr.AccessTime = time.Time{}
	hdr.ChangeTime = time.Time{}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

func loadMatcher(fs afero.Fs, root string, opts Options) (*patternmatcher.PatternMatcher, error) {
	if !opts.RespectIgnoreFile {
		return nil, nil
	}
	f, err := fs.Open(filepath.Join(root, IgnoreFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	patterns, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", IgnoreFile, err)
	}
	return patternmatcher.New(patterns)
}

// List returns the entry names of a tar.gz archive in order.
func List(data []byte) ([]string, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	var names []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		names = append(names, hdr.Name)
	}
}
