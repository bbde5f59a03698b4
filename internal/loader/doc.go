// Package loader opens segmentation checkpoints and returns their state dicts.
//
// Supported formats, detected by magic bytes rather than file extension:
//   - Born (.born v2 container, also written under a .pth name by zoo export)
//   - SafeTensors (Hugging Face standard)
//   - PyTorch (torch.save zip archives and legacy pickles)
//
// Supported architectures for detection:
//   - DeepLabV3 (ResNet-50, ResNet-101)
//   - FCN (ResNet-50, ResNet-101)
//
// Example:
//
//	// Auto-detect format and load every tensor
//	ckpt, err := loader.Open("deeplabsv3/deeplabv3_resnet101.pth", cpu.New())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Format: %s\n", ckpt.Format)
//	fmt.Printf("Architecture: %s\n", ckpt.Architecture)
//	for _, name := range ckpt.Names {
//	    fmt.Println(name, ckpt.StateDict[name].Shape())
//	}
package loader
