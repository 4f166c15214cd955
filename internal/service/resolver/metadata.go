package resolver

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
)

// errBadMetadata is returned for CLI metadata that cannot be walked.
var errBadMetadata = errors.New("malformed CLI metadata")

const (
	// metadataSignature is "BSJB", the first bytes of the metadata root.
	metadataSignature uint32 = 0x424A5342
	// metadataRootHeader is the root size before the version string.
	metadataRootHeader = 16
	// tablesHeader is the tables stream size before the row counts.
	tablesHeader = 24
	// cliHeaderMetadata is the offset of the metadata directory in the CLI header.
	cliHeaderMetadata = 8
	// assemblyVersionOffset skips HashAlgId in an Assembly row.
	assemblyVersionOffset = 4
	// assemblyVersionSize covers MajorVersion, MinorVersion, BuildNumber and RevisionNumber.
	assemblyVersionSize = 8
	// extraDataFlag marks four bytes of extra data after the row counts.
	extraDataFlag = 0x40
	// tableCount is the number of bits in the valid mask.
	tableCount = 64
)

// Heap size flags of the tables stream.
const (
	wideStrings = 0x01
	wideGUIDs   = 0x02
	wideBlobs   = 0x04
)

// Metadata table numbers.
const (
	tableModule = iota
	tableTypeRef
	tableTypeDef
	tableFieldPtr
	tableField
	tableMethodPtr
	tableMethodDef
	tableParamPtr
	tableParam
	tableInterfaceImpl
	tableMemberRef
	tableConstant
	tableCustomAttribute
	tableFieldMarshal
	tableDeclSecurity
	tableClassLayout
	tableFieldLayout
	tableStandAloneSig
	tableEventMap
	tableEventPtr
	tableEvent
	tablePropertyMap
	tablePropertyPtr
	tableProperty
	tableMethodSemantics
	tableMethodImpl
	tableModuleRef
	tableTypeSpec
	tableImplMap
	tableFieldRVA
	tableEncLog
	tableEncMap
	tableAssembly
	tableAssemblyProcessor
	tableAssemblyOS
	tableAssemblyRef
	tableAssemblyRefProcessor
	tableAssemblyRefOS
	tableFile
	tableExportedType
	tableManifestResource
	tableNestedClass
	tableGenericParam
	tableMethodSpec
	tableGenericParamConstraint
)

// noTable fills coded index tags that do not point anywhere.
const noTable = -1

// codedIndex is a family of tables addressed by one tagged index.
type codedIndex struct {
	// tagBits is the number of low bits holding the table tag.
	tagBits uint
	// tables are the tag targets in tag order.
	tables []int
}

var (
	typeDefOrRef        = codedIndex{2, []int{tableTypeDef, tableTypeRef, tableTypeSpec}}
	hasConstant         = codedIndex{2, []int{tableField, tableParam, tableProperty}}
	hasFieldMarshal     = codedIndex{1, []int{tableField, tableParam}}
	hasDeclSecurity     = codedIndex{2, []int{tableTypeDef, tableMethodDef, tableAssembly}}
	memberRefParent     = codedIndex{3, []int{tableTypeDef, tableTypeRef, tableModuleRef, tableMethodDef, tableTypeSpec}}
	hasSemantics        = codedIndex{1, []int{tableEvent, tableProperty}}
	methodDefOrRef      = codedIndex{1, []int{tableMethodDef, tableMemberRef}}
	memberForwarded     = codedIndex{1, []int{tableField, tableMethodDef}}
	resolutionScope     = codedIndex{2, []int{tableModule, tableModuleRef, tableAssemblyRef, tableTypeRef}}
	customAttributeType = codedIndex{3, []int{noTable, noTable, tableMethodDef, tableMemberRef, noTable}}
	hasCustomAttribute  = codedIndex{5, []int{
		tableMethodDef, tableField, tableTypeRef, tableTypeDef, tableParam, tableInterfaceImpl,
		tableMemberRef, tableModule, tableDeclSecurity, tableProperty, tableEvent, tableStandAloneSig,
		tableModuleRef, tableTypeSpec, tableAssembly, tableAssemblyRef, tableFile, tableExportedType,
		tableManifestResource, tableGenericParam, tableGenericParamConstraint, tableMethodSpec,
	}}
)

// columnKind tells how wide a column is stored.
type columnKind uint8

const (
	columnFixed2 columnKind = iota
	columnFixed4
	columnString
	columnGUID
	columnBlob
	columnTable
	columnCoded
)

// column describes one column of a metadata table row.
type column struct {
	// kind selects the width rule.
	kind columnKind
	// table is the target of a simple index.
	table int
	// family is the target of a coded index.
	family *codedIndex
}

var (
	u16    = column{kind: columnFixed2}
	u32    = column{kind: columnFixed4}
	str    = column{kind: columnString}
	guid   = column{kind: columnGUID}
	blobID = column{kind: columnBlob}
)

func indexOf(table int) column {
	return column{kind: columnTable, table: table}
}

func coded(family *codedIndex) column {
	return column{kind: columnCoded, family: family}
}

// rowSchemas lists the columns of every table stored before the Assembly table.
var rowSchemas = [tableAssembly][]column{
	tableModule:          {u16, str, guid, guid, guid},
	tableTypeRef:         {coded(&resolutionScope), str, str},
	tableTypeDef:         {u32, str, str, coded(&typeDefOrRef), indexOf(tableField), indexOf(tableMethodDef)},
	tableFieldPtr:        {indexOf(tableField)},
	tableField:           {u16, str, blobID},
	tableMethodPtr:       {indexOf(tableMethodDef)},
	tableMethodDef:       {u32, u16, u16, str, blobID, indexOf(tableParam)},
	tableParamPtr:        {indexOf(tableParam)},
	tableParam:           {u16, u16, str},
	tableInterfaceImpl:   {indexOf(tableTypeDef), coded(&typeDefOrRef)},
	tableMemberRef:       {coded(&memberRefParent), str, blobID},
	tableConstant:        {u16, coded(&hasConstant), blobID},
	tableCustomAttribute: {coded(&hasCustomAttribute), coded(&customAttributeType), blobID},
	tableFieldMarshal:    {coded(&hasFieldMarshal), blobID},
	tableDeclSecurity:    {u16, coded(&hasDeclSecurity), blobID},
	tableClassLayout:     {u16, u32, indexOf(tableTypeDef)},
	tableFieldLayout:     {u32, indexOf(tableField)},
	tableStandAloneSig:   {blobID},
	tableEventMap:        {indexOf(tableTypeDef), indexOf(tableEvent)},
	tableEventPtr:        {indexOf(tableEvent)},
	tableEvent:           {u16, str, coded(&typeDefOrRef)},
	tablePropertyMap:     {indexOf(tableTypeDef), indexOf(tableProperty)},
	tablePropertyPtr:     {indexOf(tableProperty)},
	tableProperty:        {u16, str, blobID},
	tableMethodSemantics: {u16, indexOf(tableMethodDef), coded(&hasSemantics)},
	tableMethodImpl:      {indexOf(tableTypeDef), coded(&methodDefOrRef), coded(&methodDefOrRef)},
	tableModuleRef:       {str},
	tableTypeSpec:        {blobID},
	tableImplMap:         {u16, coded(&memberForwarded), str, indexOf(tableModuleRef)},
	tableFieldRVA:        {u32, indexOf(tableField)},
	tableEncLog:          {u32, u32},
	tableEncMap:          {u32},
}

// tableLayout holds what decides column widths in a tables stream.
type tableLayout struct {
	// heapSizes are the wide heap flags.
	heapSizes byte
	// rows are the row counts by table number.
	rows [tableCount]uint32
}

func (l *tableLayout) heapIndexSize(flag byte) uint64 {
	if l.heapSizes&flag != 0 {
		return 4
	}

	return 2
}

func (l *tableLayout) columnSize(c column) uint64 {
	switch c.kind {
	case columnFixed2:
		return 2
	case columnFixed4:
		return 4
	case columnString:
		return l.heapIndexSize(wideStrings)
	case columnGUID:
		return l.heapIndexSize(wideGUIDs)
	case columnBlob:
		return l.heapIndexSize(wideBlobs)
	case columnTable:
		if l.rows[c.table] < 1<<16 {
			return 2
		}

		return 4
	case columnCoded:
		var largest uint32

		for _, table := range c.family.tables {
			if table != noTable && l.rows[table] > largest {
				largest = l.rows[table]
			}
		}

		if largest < 1<<(16-c.family.tagBits) {
			return 2
		}

		return 4
	}

	return 0
}

func (l *tableLayout) rowSize(schema []column) uint64 {
	var size uint64

	for _, c := range schema {
		size += l.columnSize(c)
	}

	return size
}

// ModuleVersion reads the assembly version from the CLI metadata of a managed
// PE image, formatted as major.minor.build.revision.
func ModuleVersion(path string) (string, error) {
	image, err := pe.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errNotPE, err)
	}

	defer func() {
		_ = image.Close()
	}()

	descriptor, err := cliDescriptor(image)
	if err != nil {
		return "", err
	}

	header, err := readRVA(image, descriptor.VirtualAddress, descriptor.Size)
	if err != nil {
		return "", fmt.Errorf("read CLI header: %w", err)
	}

	if len(header) < cliHeaderMetadata+8 {
		return "", fmt.Errorf("short CLI header: %w", errBadMetadata)
	}

	metadata, err := readRVA(image,
		binary.LittleEndian.Uint32(header[cliHeaderMetadata:]),
		binary.LittleEndian.Uint32(header[cliHeaderMetadata+4:]))
	if err != nil {
		return "", fmt.Errorf("read metadata: %w", err)
	}

	return parseAssemblyVersion(metadata)
}

// cliDescriptor returns the COM descriptor directory that points at the CLI header.
func cliDescriptor(image *pe.File) (pe.DataDirectory, error) {
	var (
		directories []pe.DataDirectory
		count       uint32
	)

	switch header := image.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		directories, count = header.DataDirectory[:], header.NumberOfRvaAndSizes
	case *pe.OptionalHeader64:
		directories, count = header.DataDirectory[:], header.NumberOfRvaAndSizes
	}

	if count <= pe.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR ||
		directories[pe.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR].VirtualAddress == 0 {
		return pe.DataDirectory{}, fmt.Errorf("no CLI header: %w", ErrNoVersion)
	}

	return directories[pe.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR], nil
}

// readRVA returns size bytes mapped at rva.
func readRVA(image *pe.File, rva, size uint32) ([]byte, error) {
	for _, section := range image.Sections {
		start := section.VirtualAddress
		if rva < start || rva-start >= max(section.VirtualSize, section.Size) {
			continue
		}

		data, err := section.Data()
		if err != nil {
			return nil, fmt.Errorf("read section %s: %w", section.Name, err)
		}

		offset := uint64(rva - start)
		if offset+uint64(size) > uint64(len(data)) {
			return nil, fmt.Errorf("rva %#x+%d past section %s: %w", rva, size, section.Name, errBadMetadata)
		}

		return data[offset : offset+uint64(size)], nil
	}

	return nil, fmt.Errorf("rva %#x outside sections: %w", rva, errBadMetadata)
}

// parseAssemblyVersion walks the tables stream of metadata to the first
// Assembly row. Modules without an assembly manifest and unversioned
// assemblies report ErrNoVersion.
func parseAssemblyVersion(metadata []byte) (string, error) {
	tables, err := tablesStream(metadata)
	if err != nil {
		return "", err
	}

	if len(tables) < tablesHeader {
		return "", fmt.Errorf("short tables stream: %w", errBadMetadata)
	}

	layout := tableLayout{heapSizes: tables[6]}
	valid := binary.LittleEndian.Uint64(tables[8:])
	offset := uint64(tablesHeader)

	for table := 0; table < tableCount; table++ {
		if valid&(1<<table) == 0 {
			continue
		}

		if uint64(len(tables)) < offset+4 {
			return "", fmt.Errorf("short row counts: %w", errBadMetadata)
		}

		layout.rows[table] = binary.LittleEndian.Uint32(tables[offset:])
		offset += 4
	}

	if layout.heapSizes&extraDataFlag != 0 {
		offset += 4
	}

	if layout.rows[tableAssembly] == 0 {
		return "", fmt.Errorf("no assembly manifest: %w", ErrNoVersion)
	}

	for table, schema := range rowSchemas {
		offset += uint64(layout.rows[table]) * layout.rowSize(schema)
	}

	offset += assemblyVersionOffset
	if uint64(len(tables)) < offset+assemblyVersionSize {
		return "", fmt.Errorf("short assembly row: %w", errBadMetadata)
	}

	row := tables[offset:]
	major := binary.LittleEndian.Uint16(row)
	minor := binary.LittleEndian.Uint16(row[2:])
	build := binary.LittleEndian.Uint16(row[4:])
	revision := binary.LittleEndian.Uint16(row[6:])

	if major == 0 && minor == 0 && build == 0 && revision == 0 {
		return "", ErrNoVersion
	}

	return fmt.Sprintf("%d.%d.%d.%d", major, minor, build, revision), nil
}

// tablesStream finds the compressed or uncompressed tables stream in metadata.
func tablesStream(metadata []byte) ([]byte, error) {
	if len(metadata) < metadataRootHeader || binary.LittleEndian.Uint32(metadata) != metadataSignature {
		return nil, fmt.Errorf("bad signature: %w", errBadMetadata)
	}

	offset := uint64(metadataRootHeader) + uint64(binary.LittleEndian.Uint32(metadata[12:]))
	if uint64(len(metadata)) < offset+4 {
		return nil, fmt.Errorf("short metadata root: %w", errBadMetadata)
	}

	streams := binary.LittleEndian.Uint16(metadata[offset+2:])
	offset += 4

	for i := uint16(0); i < streams; i++ {
		if uint64(len(metadata)) < offset+8 {
			return nil, fmt.Errorf("short stream header: %w", errBadMetadata)
		}

		start := uint64(binary.LittleEndian.Uint32(metadata[offset:]))
		size := uint64(binary.LittleEndian.Uint32(metadata[offset+4:]))
		offset += 8

		end := bytes.IndexByte(metadata[offset:], 0)
		if end < 0 {
			return nil, fmt.Errorf("unterminated stream name: %w", errBadMetadata)
		}

		name := string(metadata[offset : offset+uint64(end)])
		// Names are null terminated and padded to four bytes.
		offset += uint64(end+4) &^ 3

		if name != "#~" && name != "#-" {
			continue
		}

		if uint64(len(metadata)) < start+size {
			return nil, fmt.Errorf("stream %s past metadata: %w", name, errBadMetadata)
		}

		return metadata[start : start+size], nil
	}

	return nil, fmt.Errorf("no tables stream: %w", ErrNoVersion)
}
