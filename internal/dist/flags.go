package dist

// Distribution capability flags exchanged during the handshake
// (erts/emulator/beam/dist.h). Only the subset this client understands is
// declared here.
const (
	flagPublished          uint64 = 1 << 0
	flagExtendedReferences uint64 = 1 << 2
	flagFunTags            uint64 = 1 << 4
	flagNewFunTags         uint64 = 1 << 7
	flagExtendedPidsPorts  uint64 = 1 << 8
	flagExportPtrTag       uint64 = 1 << 9
	flagBitBinaries        uint64 = 1 << 10
	flagNewFloats          uint64 = 1 << 11
	flagUTF8Atoms          uint64 = 1 << 16
	flagMapTag             uint64 = 1 << 17
	flagBigCreation        uint64 = 1 << 18
	flagHandshake23        uint64 = 1 << 24
	flagUnlinkID           uint64 = 1 << 25
	flagSpawn              uint64 = 1 << 32
	flagNameMe             uint64 = 1 << 33
	flagV4NC               uint64 = 1 << 34
	flagMandatory25Digest  uint64 = 1 << 36
)

// ourFlags is the capability set sent in send_name. The node connects as a
// hidden peer (no flagPublished) and requests a dynamically assigned name
// (flagNameMe). The codec bits cover everything the ETF layer can emit:
// extended references and pids, UTF-8 atoms, maps, new floats, and 32-bit
// creation values.
const ourFlags = flagExtendedReferences |
	flagFunTags |
	flagNewFunTags |
	flagExtendedPidsPorts |
	flagExportPtrTag |
	flagBitBinaries |
	flagNewFloats |
	flagUTF8Atoms |
	flagMapTag |
	flagBigCreation |
	flagHandshake23 |
	flagUnlinkID |
	flagSpawn |
	flagNameMe |
	flagV4NC

// Control message operations (the first element of the control tuple). This
// client only ever sends regSend and consumes send; everything else inbound
// is logged and dropped.
const (
	opLink         = 1
	opSend         = 2
	opExit         = 3
	opUnlink       = 4
	opRegSend      = 6
	opGroupLeader  = 7
	opExit2        = 8
	opSendTT       = 12
	opMonitorP     = 19
	opDemonitorP   = 20
	opMonitorPExit = 21
	opSendSender   = 22
)
