// Package serialization reads and writes zoo parameter files.
//
// The native .born format is a checksummed container:
//
//	[64 bytes: fixed header]
//	  magic "BORN", version (uint32 LE), flags (uint32 LE), reserved,
//	  header size (uint64 LE), data size (uint64 LE),
//	  SHA-256 of the data section (32 bytes)
//	[JSON header: tensor table, metadata, export description]
//	[zero padding to a 64-byte boundary]
//	[tensor data: raw little-endian bytes in sorted name order]
//
// SafeTensors files can be written and read as well, so exports are usable
// from the Hugging Face ecosystem.
//
// Both writers go through a temporary file in the destination directory and
// rename it into place on Close, so a failed export never leaves a partial
// file behind.
//
// Example usage:
//
//	stateDict := model.StateDict()
//	header := serialization.Header{ModelType: "deeplabv3_resnet101"}
//	if err := serialization.WriteFile("model.born", serialization.FormatBorn, stateDict, header); err != nil {
//	    log.Fatal(err)
//	}
//
//	reader, err := serialization.NewBornReader("model.born")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer reader.Close()
//	loaded, err := reader.ReadStateDict(backend)
package serialization
