package eterm

// VersionMagic is the leading byte of a self-contained external term
// format message, shared with the distribution protocol framing.
const VersionMagic byte = 131

// External term format tags. Names follow the distribution protocol
// documentation; the legacy float and old reference forms are accepted on
// decode only.
const (
	tagNewFloat   byte = 70
	tagSmallInt   byte = 97
	tagInt        byte = 98
	tagFloat      byte = 99 // 31-byte ASCII float, decode only
	tagAtom       byte = 100
	tagOldRef     byte = 101 // single-id reference, decode only
	tagPort       byte = 102
	tagPid        byte = 103
	tagSmallTuple byte = 104
	tagLargeTuple byte = 105
	tagNil        byte = 106
	tagString     byte = 107
	tagList       byte = 108
	tagBinary     byte = 109
	tagSmallBig   byte = 110
	tagLargeBig   byte = 111
	tagNewRef     byte = 114
	tagSmallAtom  byte = 115
	tagMap        byte = 116
)
