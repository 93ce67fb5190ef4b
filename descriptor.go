package granc

import "github.com/jhump/protoreflect/desc"

// DescriptorKind identifies which concrete kind a Descriptor wraps.
type DescriptorKind int

const (
	KindMessage DescriptorKind = iota
	KindService
	KindEnum
)

// Descriptor is a symbol resolved from a pool: a message, an enum, or a
// service; lookups check messages and enums before services. Most pool lookups only ever need
// message/enum resolution (internal/pool.Pool.GetDescriptorBySymbol stays
// narrow on purpose) but the facade's GetDescriptorBySymbol additionally
// checks the service index, so its return value needs to be able to name
// any of the three.
type Descriptor struct {
	kind    DescriptorKind
	message *desc.MessageDescriptor
	service *desc.ServiceDescriptor
	enum    *desc.EnumDescriptor
}

// Kind reports which concrete descriptor this value wraps.
func (d Descriptor) Kind() DescriptorKind { return d.kind }

// Message returns the wrapped message descriptor, or nil if Kind() != KindMessage.
func (d Descriptor) Message() *desc.MessageDescriptor { return d.message }

// Service returns the wrapped service descriptor, or nil if Kind() != KindService.
func (d Descriptor) Service() *desc.ServiceDescriptor { return d.service }

// Enum returns the wrapped enum descriptor, or nil if Kind() != KindEnum.
func (d Descriptor) Enum() *desc.EnumDescriptor { return d.enum }

func descriptorFromMessage(m *desc.MessageDescriptor) Descriptor {
	return Descriptor{kind: KindMessage, message: m}
}

func descriptorFromService(s *desc.ServiceDescriptor) Descriptor {
	return Descriptor{kind: KindService, service: s}
}

func descriptorFromEnum(e *desc.EnumDescriptor) Descriptor {
	return Descriptor{kind: KindEnum, enum: e}
}

// descriptorFromPoolLookup adapts a raw desc.Descriptor (message or enum,
// per pool.Pool.GetDescriptorBySymbol's contract) into a Descriptor.
func descriptorFromPoolLookup(d desc.Descriptor) (Descriptor, bool) {
	switch v := d.(type) {
	case *desc.MessageDescriptor:
		return descriptorFromMessage(v), true
	case *desc.EnumDescriptor:
		return descriptorFromEnum(v), true
	default:
		return Descriptor{}, false
	}
}
