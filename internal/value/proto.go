package value

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// EncodeProto encodes a Value into the wire bytes of the message described
// by desc. Fields not present on the Value's corresponding map key are left
// at their zero value, matching standard proto3 semantics.
func EncodeProto(desc protoreflect.MessageDescriptor, v Value) ([]byte, error) {
	msg := dynamicpb.NewMessage(desc)
	if err := populateMessage(msg, v); err != nil {
		return nil, fmt.Errorf("value: encode_proto: %w", err)
	}
	return proto.Marshal(msg)
}

// DecodeProto decodes wire bytes described by desc into a Value. Unknown
// fields are skipped; missing required singular scalars decode to their
// zero value, per the Value Model's proto interop contract.
func DecodeProto(desc protoreflect.MessageDescriptor, data []byte) (Value, error) {
	msg := dynamicpb.NewMessage(desc)
	if err := proto.Unmarshal(data, msg); err != nil {
		return Null(), fmt.Errorf("value: decode_proto: %w", err)
	}
	return messageToValue(msg), nil
}

func populateMessage(msg *dynamicpb.Message, v Value) error {
	if v.Kind() != KindMap {
		return fmt.Errorf("message value must be a map, got %s", v.Kind())
	}
	fields := msg.Descriptor().Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		fv, ok := v.MapGet(StringKey(string(fd.Name())))
		if !ok {
			continue
		}
		pv, err := valueToProtoValue(fd, fv)
		if err != nil {
			return fmt.Errorf("field %s: %w", fd.Name(), err)
		}
		msg.Set(fd, pv)
	}
	return nil
}

func valueToProtoValue(fd protoreflect.FieldDescriptor, v Value) (protoreflect.Value, error) {
	if fd.IsList() {
		items, ok := v.AsList()
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected list")
		}
		list := dynamicpb.NewMessage(fd.ContainingMessage()).Mutable(fd).List()
		for _, item := range items {
			ev, err := scalarToProtoValue(fd, item)
			if err != nil {
				return protoreflect.Value{}, err
			}
			list.Append(ev)
		}
		return protoreflect.ValueOfList(list), nil
	}
	if fd.Kind() == protoreflect.MessageKind || fd.Kind() == protoreflect.GroupKind {
		sub := dynamicpb.NewMessage(fd.Message())
		if err := populateMessage(sub, v); err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfMessage(sub), nil
	}
	return scalarToProtoValue(fd, v)
}

func scalarToProtoValue(fd protoreflect.FieldDescriptor, v Value) (protoreflect.Value, error) {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		b, _ := v.AsBool()
		return protoreflect.ValueOfBool(b), nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		i, _ := v.AsI64()
		return protoreflect.ValueOfInt32(int32(i)), nil
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		i, ok := v.AsI64()
		if !ok {
			if s, isStr := v.AsString(); isStr {
				var parsed int64
				fmt.Sscanf(s, "%d", &parsed)
				i = parsed
			}
		}
		return protoreflect.ValueOfInt64(i), nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		u, _ := v.AsU64()
		return protoreflect.ValueOfUint32(uint32(u)), nil
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		u, ok := v.AsU64()
		if !ok {
			if s, isStr := v.AsString(); isStr {
				var parsed uint64
				fmt.Sscanf(s, "%d", &parsed)
				u = parsed
			}
		}
		return protoreflect.ValueOfUint64(u), nil
	case protoreflect.FloatKind:
		f, _ := v.AsF64()
		return protoreflect.ValueOfFloat32(float32(f)), nil
	case protoreflect.DoubleKind:
		f, _ := v.AsF64()
		return protoreflect.ValueOfFloat64(f), nil
	case protoreflect.StringKind:
		s, _ := v.AsString()
		return protoreflect.ValueOfString(s), nil
	case protoreflect.BytesKind:
		b, _ := v.AsBytes()
		return protoreflect.ValueOfBytes(b), nil
	case protoreflect.EnumKind:
		i, _ := v.AsI64()
		return protoreflect.ValueOfEnum(protoreflect.EnumNumber(i)), nil
	default:
		return protoreflect.Value{}, fmt.Errorf("unsupported field kind %s", fd.Kind())
	}
}

// messageToValue converts a populated dynamic message into a Value, the
// inverse of populateMessage. Singular scalar and enum fields are always
// present, at their zero value when absent from the wire; unset message,
// list, map and oneof fields are left out. 64-bit integers always decode as
// I64/U64; there is no option for a string representation.
func messageToValue(msg *dynamicpb.Message) Value {
	out := EmptyMap()
	fields := msg.Descriptor().Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if !msg.Has(fd) && (fd.IsList() || fd.IsMap() || fd.Message() != nil || fd.ContainingOneof() != nil) {
			continue
		}
		out = out.MapSet(StringKey(string(fd.Name())), protoValueToValue(fd, msg.Get(fd)))
	}
	return out
}

func protoValueToValue(fd protoreflect.FieldDescriptor, pv protoreflect.Value) Value {
	if fd.IsList() {
		list := pv.List()
		items := make([]Value, list.Len())
		for i := 0; i < list.Len(); i++ {
			items[i] = scalarProtoToValue(fd, list.Get(i))
		}
		return List(items...)
	}
	return scalarProtoToValue(fd, pv)
}

func scalarProtoToValue(fd protoreflect.FieldDescriptor, pv protoreflect.Value) Value {
	switch fd.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		if dm, ok := pv.Message().Interface().(*dynamicpb.Message); ok {
			return messageToValue(dm)
		}
		return Null()
	case protoreflect.BoolKind:
		return Bool(pv.Bool())
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return I64(pv.Int())
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return U64(pv.Uint())
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return F64(pv.Float())
	case protoreflect.StringKind:
		return String(pv.String())
	case protoreflect.BytesKind:
		return Bytes(pv.Bytes())
	case protoreflect.EnumKind:
		return I64(int64(pv.Enum()))
	default:
		return Null()
	}
}
