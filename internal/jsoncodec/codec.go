// Package jsoncodec validates a JSON request body against a message
// descriptor's shape before handing it to protoreflect's dynamic message
// for the actual JSON<->protobuf transcoding.
//
// The validation pass exists because dynamic.Message.UnmarshalJSON's own
// errors aren't path-addressable: callers need to know *where* in the body
// a field went wrong, not just that the unmarshal failed. Validating first
// also guarantees a malformed body never opens a stream to the server.
package jsoncodec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/JasterV/granc/internal/grpcerr"
)

// Codec transcodes JSON to and from a fixed pair of message descriptors.
type Codec struct {
	input  *desc.MessageDescriptor
	output *desc.MessageDescriptor
}

// New returns a codec bound to a method's input and output message
// descriptors.
func New(input, output *desc.MessageDescriptor) *Codec {
	return &Codec{input: input, output: output}
}

// Encode validates raw against the input descriptor's shape and, if valid,
// builds the dynamic message protoreflect/grpcdynamic will send on the
// wire.
func (c *Codec) Encode(raw json.RawMessage) (*dynamic.Message, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, &grpcerr.InvalidJSONShapeError{Path: "$", Reason: err.Error()}
	}
	if err := validateMessage(v, c.input, "$"); err != nil {
		return nil, err
	}

	msg := dynamic.NewMessage(c.input)
	if err := msg.UnmarshalJSON(raw); err != nil {
		return nil, &grpcerr.InvalidJSONShapeError{Path: "$", Reason: err.Error()}
	}
	return msg, nil
}

// Decode marshals a dynamic message back to JSON.
func (c *Codec) Decode(msg *dynamic.Message) (json.RawMessage, error) {
	raw, err := msg.MarshalJSON()
	if err != nil {
		return nil, &grpcerr.ProtobufDecodeError{Err: err}
	}
	return raw, nil
}

// validateMessage recursively checks that v has the shape desc requires:
// an object whose fields all exist on the message and carry JSON values
// compatible with their declared protobuf types. A key with no matching
// field is rejected outright, path and all.
func validateMessage(v any, md *desc.MessageDescriptor, path string) error {
	if v == nil {
		return nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return &grpcerr.InvalidJSONShapeError{Path: path, Reason: "expected a JSON object"}
	}

	for key, val := range obj {
		fieldPath := path + "." + key
		field := findField(md, key)
		if field == nil {
			return &grpcerr.InvalidJSONShapeError{Path: fieldPath, Reason: fmt.Sprintf("unknown field %q", key)}
		}
		if err := validateField(val, field, fieldPath); err != nil {
			return err
		}
	}
	return nil
}

// findField matches a JSON key against a field's proto name or its
// camelCase JSON name, the two spellings protojson accepts.
func findField(md *desc.MessageDescriptor, key string) *desc.FieldDescriptor {
	for _, f := range md.GetFields() {
		if f.GetName() == key || f.GetJSONName() == key {
			return f
		}
	}
	return nil
}

func validateField(val any, field *desc.FieldDescriptor, path string) error {
	if val == nil {
		return nil
	}

	if field.IsMap() {
		obj, ok := val.(map[string]any)
		if !ok {
			return &grpcerr.InvalidJSONShapeError{Path: path, Reason: "expected a JSON object for a map field"}
		}
		valueField := field.GetMessageType().FindFieldByName("value")
		for k, v := range obj {
			if err := validateField(v, valueField, path+"."+k); err != nil {
				return err
			}
		}
		return nil
	}

	if field.IsRepeated() {
		arr, ok := val.([]any)
		if !ok {
			return &grpcerr.InvalidJSONShapeError{Path: path, Reason: "expected a JSON array for a repeated field"}
		}
		for i, el := range arr {
			if err := validateScalarOrMessage(el, field, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	}

	return validateScalarOrMessage(val, field, path)
}

func validateScalarOrMessage(val any, field *desc.FieldDescriptor, path string) error {
	switch field.GetType() {
	case descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, descriptorpb.FieldDescriptorProto_TYPE_GROUP:
		return validateMessage(val, field.GetMessageType(), path)

	case descriptorpb.FieldDescriptorProto_TYPE_STRING:
		if _, ok := val.(string); !ok {
			return &grpcerr.InvalidJSONShapeError{Path: path, Reason: "expected a string"}
		}

	case descriptorpb.FieldDescriptorProto_TYPE_BYTES:
		s, ok := val.(string)
		if !ok {
			return &grpcerr.InvalidJSONShapeError{Path: path, Reason: "expected a base64 string"}
		}
		if _, err := base64.StdEncoding.DecodeString(s); err != nil {
			return &grpcerr.InvalidJSONShapeError{Path: path, Reason: "invalid base64: " + err.Error()}
		}

	case descriptorpb.FieldDescriptorProto_TYPE_BOOL:
		if _, ok := val.(bool); !ok {
			return &grpcerr.InvalidJSONShapeError{Path: path, Reason: "expected a bool"}
		}

	case descriptorpb.FieldDescriptorProto_TYPE_INT64, descriptorpb.FieldDescriptorProto_TYPE_UINT64,
		descriptorpb.FieldDescriptorProto_TYPE_SINT64, descriptorpb.FieldDescriptorProto_TYPE_FIXED64,
		descriptorpb.FieldDescriptorProto_TYPE_SFIXED64:
		// Canonical protobuf-JSON mapping: 64-bit integers may be either a
		// JSON number or a decimal string (to survive JS's float64 range).
		switch val.(type) {
		case float64, string:
		default:
			return &grpcerr.InvalidJSONShapeError{Path: path, Reason: "expected a number or numeric string for a 64-bit integer"}
		}

	case descriptorpb.FieldDescriptorProto_TYPE_INT32, descriptorpb.FieldDescriptorProto_TYPE_UINT32,
		descriptorpb.FieldDescriptorProto_TYPE_SINT32, descriptorpb.FieldDescriptorProto_TYPE_FIXED32,
		descriptorpb.FieldDescriptorProto_TYPE_SFIXED32, descriptorpb.FieldDescriptorProto_TYPE_FLOAT,
		descriptorpb.FieldDescriptorProto_TYPE_DOUBLE:
		if _, ok := val.(float64); !ok {
			return &grpcerr.InvalidJSONShapeError{Path: path, Reason: "expected a number"}
		}

	case descriptorpb.FieldDescriptorProto_TYPE_ENUM:
		// Canonical mapping: either the enum value's string name or its
		// numeric tag.
		switch val.(type) {
		case string, float64:
		default:
			return &grpcerr.InvalidJSONShapeError{Path: path, Reason: "expected an enum name or numeric tag"}
		}
	}
	return nil
}
