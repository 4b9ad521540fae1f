package resnet

import "errors"

// Errors returned by network construction and weight loading.
var (
	ErrInvalidConfig        = errors.New("invalid network config")
	ErrUnknownArch          = errors.New("unknown architecture")
	ErrUnknownDataset       = errors.New("unknown pretrained dataset")
	ErrNumClassesMismatch   = errors.New("num_classes does not match pretrained settings")
	ErrMissingDonorKey      = errors.New("donor state dict lacks attention branch")
	ErrInvalidSettings      = errors.New("invalid pretrained settings")
	ErrNotDomainConditioned = errors.New("network has no domain-conditioned attention")
)
