// This file implements the descriptors as defined in the UVC spec 1.5, section 3.6.
package descriptors

import "io"

// InterfaceAssociationDescriptor groups interfaces that together form one
// function (video capture being a control interface plus a streaming
// interface).
type InterfaceAssociationDescriptor struct {
	FirstInterface   uint8
	InterfaceCount   uint8
	FunctionClass    ClassCode
	FunctionSubClass SubclassCode
	FunctionProtocol ProtocolCode
	DescriptionIndex uint8
}

func (iad *InterfaceAssociationDescriptor) Unmarshal(buf []byte) error {
	if len(buf) != int(buf[0]) {
		return io.ErrShortBuffer
	}
	if buf[1] != DescriptorTypeInterfaceAssociation {
		return ErrInvalidDescriptor
	}
	iad.FirstInterface = buf[2]
	iad.InterfaceCount = buf[3]
	iad.FunctionClass = ClassCode(buf[4])
	iad.FunctionSubClass = SubclassCode(buf[5])
	iad.FunctionProtocol = ProtocolCode(buf[6])
	iad.DescriptionIndex = buf[7]
	return nil
}
