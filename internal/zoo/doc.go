// Package zoo builds pretrained semantic segmentation models.
//
// Four architectures are registered: DeepLabV3 and FCN heads on ResNet-50 and
// ResNet-101 backbones. Their module trees and state dict keys mirror the
// published checkpoints, so the COCO-with-VOC-labels weights load strictly:
//
//	model, err := zoo.New(ctx, "deeplabv3_resnet101", cpu.New(), zoo.Options{
//	    Pretrained: true,
//	    Source:     source, // fetches and decodes the upstream .pth file
//	})
//	if err != nil {
//	    return err
//	}
//	nn.Eval[*cpu.CPUBackend](model)
//	stateDict := model.StateDict()
//
// Additional architectures can be added with Register.
package zoo
