// Package serialization implements the chorale checkpoint container format.
//
// Format structure:
//
//	[64 bytes: fixed header]
//	  0x00  Magic "CHOR"
//	  0x04  Version (uint32 LE)
//	  0x08  Flags (uint32 LE)
//	  0x10  Header size (uint64 LE)
//	  0x18  Data size (uint64 LE)
//	  0x20  SHA-256 checksum of the tensor data
//	[Header: JSON metadata, tensor table + checkpoint meta]
//	[Tensor data: raw bytes, 64-byte aligned]
//
// One format serves both the periodic step snapshots and explicit saves:
// every file carries the model state dict plus the optimizer state dict
// under the "optimizer." prefix.
//
// Example usage:
//
//	writer, err := serialization.NewWriter("semantic.transformer.0.pt")
//	if err != nil { ... }
//	defer writer.Close()
//	err = writer.WriteStateDict(stateDict, header)
//
//	reader, err := serialization.NewReader("semantic.transformer.0.pt")
//	if err != nil { ... }
//	defer reader.Close()
//	stateDict, err := reader.ReadStateDict()
package serialization
