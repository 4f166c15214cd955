package resolver

import (
	"bytes"
	"debug/buildinfo"
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// VersionReader extracts a version string embedded in an artifact file.
type VersionReader interface {
	ReadVersion(path string) (string, error)
}

// VersionReaderFunc adapts a function to VersionReader.
type VersionReaderFunc func(path string) (string, error)

// ReadVersion calls f(path).
func (f VersionReaderFunc) ReadVersion(path string) (string, error) {
	return f(path)
}

var (
	// ErrNoVersion is returned when the artifact carries no usable version.
	ErrNoVersion = errors.New("artifact carries no version")
	// errNotPE is returned by the PE reader for non-PE images.
	errNotPE = errors.New("not a PE image")
)

const (
	// develVersion is what the Go toolchain records for unversioned builds.
	develVersion = "(devel)"
	// fixedFileInfoSignature marks the start of VS_FIXEDFILEINFO.
	fixedFileInfoSignature uint32 = 0xFEEF04BD
	// fixedFileInfoHeader is the number of bytes read after the signature:
	// struct version, file version MS and file version LS.
	fixedFileInfoHeader = 12
)

// buildVersion reads the main-module version from Go build info embedded in
// the artifact. The leading "v" of module versions is dropped.
func buildVersion(path string) (string, error) {
	info, err := buildinfo.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read build info: %w", err)
	}

	version := strings.TrimSpace(info.Main.Version)
	if version == "" || version == develVersion {
		return "", ErrNoVersion
	}

	return strings.TrimPrefix(version, "v"), nil
}

// FileVersion reads the file-version resource of the artifact. PE images
// report VS_FIXEDFILEINFO as major.minor.build.revision. ELF and Mach-O
// images have no version resource and report their build info version.
func FileVersion(path string) (string, error) {
	version, err := peFileVersion(path)
	if errors.Is(err, errNotPE) {
		return buildVersion(path)
	}

	return version, err
}

// peFileVersion locates VS_FIXEDFILEINFO in the resource section of a PE image.
func peFileVersion(path string) (string, error) {
	image, err := pe.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errNotPE, err)
	}

	defer func() {
		_ = image.Close()
	}()

	section := image.Section(".rsrc")
	if section == nil {
		return "", fmt.Errorf("no resource section: %w", ErrNoVersion)
	}

	data, err := section.Data()
	if err != nil {
		return "", fmt.Errorf("read resource section: %w", err)
	}

	return parseFixedFileInfo(data)
}

// parseFixedFileInfo finds the first VS_FIXEDFILEINFO in data and formats its file version.
func parseFixedFileInfo(data []byte) (string, error) {
	signature := binary.LittleEndian.AppendUint32(nil, fixedFileInfoSignature)

	for offset := 0; ; {
		index := bytes.Index(data[offset:], signature)
		if index < 0 {
			return "", ErrNoVersion
		}

		start := offset + index + len(signature)
		offset = start

		// VS_FIXEDFILEINFO is DWORD aligned inside the resource.
		if (start-len(signature))%4 != 0 {
			continue
		}

		if len(data) < start+fixedFileInfoHeader {
			return "", ErrNoVersion
		}

		versionMS := binary.LittleEndian.Uint32(data[start+4:])
		versionLS := binary.LittleEndian.Uint32(data[start+8:])

		if versionMS == 0 && versionLS == 0 {
			return "", ErrNoVersion
		}

		return fmt.Sprintf("%d.%d.%d.%d",
			versionMS>>16, versionMS&0xFFFF,
			versionLS>>16, versionLS&0xFFFF,
		), nil
	}
}
