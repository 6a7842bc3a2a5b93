package bytes

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"unicode/utf16"
)

// ConvertToUtf16 converts a UTF-8 string to UTF-16 LE and return it as an array of bytes.
func ConvertToUtf16(str string) []byte {
	strRunes := bytes.Runes([]byte(str))
	encoded := utf16.Encode(strRunes)

	// Convert the array of UTF-16 elements to a slice of uint8 elements in
	// little endian order. E.g: [0x1234] -> [0x34, 0x12]
	expanded := make([]uint8, 2*len(encoded))
	for i, v := range encoded {
		idx := i * 2
		expanded[idx] = uint8(v)
		expanded[idx+1] = uint8((v >> 8) & 0xFF)
	}
	return expanded
}

// ConvertFromUtf16 decodes a UTF-16 LE byte slice back into a UTF-8 string.
// Trailing null units are dropped.
func ConvertFromUtf16(b []byte) string {
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u := uint16(b[i]) | uint16(b[i+1])<<8
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

// StripPadding returns a slice of b without the trailing 0s.
func StripPadding(b []byte) []byte {
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] != 0 {
			return b[:i+1]
		}
	}
	return []byte{}
}

// BytesFromStruct serializes the fields of a struct to an array of bytes in the
// order in which the fields are declared and returns total number of bytes converted.
// Panics if data is not a struct or pointer to struct, or if there was an error writing a field.
func BytesFromStruct(data interface{}) ([]byte, int) {
	return bytesFromStruct(data, binary.LittleEndian)
}

// BytesFromStructBE is BytesFromStruct with every field written big-endian.
// The card catalogue and a few console-era formats are stored this way.
func BytesFromStructBE(data interface{}) ([]byte, int) {
	return bytesFromStruct(data, binary.BigEndian)
}

func bytesFromStruct(data interface{}, order binary.ByteOrder) ([]byte, int) {
	val := reflect.ValueOf(data)
	valKind := val.Kind()

	if valKind == reflect.Ptr {
		val = reflect.ValueOf(data).Elem()
		valKind = val.Kind()
	}

	if valKind != reflect.Struct {
		panic("BytesFromStruct(): data must of type struct " +
			"or ptr to struct, got: " + valKind.String())
	}

	convertedBytes := new(bytes.Buffer)
	// It's possible to use binary.Write on val.Interface itself, but doing
	// so prevents this function from working with dynamically sized types.
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)

		var err error
		switch kind := field.Kind(); kind {
		case reflect.Struct, reflect.Ptr:
			b, _ := bytesFromStruct(field.Interface(), order)
			err = binary.Write(convertedBytes, order, b)
		default:
			err = binary.Write(convertedBytes, order, field.Interface())
		}
		if err != nil {
			panic(err.Error())
		}
	}
	return convertedBytes.Bytes(), convertedBytes.Len()
}

// StructFromBytes populates the struct pointed to by targetStruct by reading in a
// stream of bytes and filling the values in sequential order.
func StructFromBytes(data []byte, targetStruct interface{}) {
	structFromBytes(data, targetStruct, binary.LittleEndian)
}

// StructFromBytesBE is StructFromBytes with every field read big-endian.
func StructFromBytesBE(data []byte, targetStruct interface{}) {
	structFromBytes(data, targetStruct, binary.BigEndian)
}

func structFromBytes(data []byte, targetStruct interface{}, order binary.ByteOrder) {
	targetVal := reflect.ValueOf(targetStruct)

	if valKind := targetVal.Kind(); valKind != reflect.Ptr {
		panic("StructFromBytes(): targetStruct must be a " +
			"ptr to struct, got: " + valKind.String())
	}

	reader := bytes.NewReader(data)
	val := targetVal.Elem()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)

		var err error
		switch field.Kind() {
		case reflect.Ptr:
			err = binary.Read(reader, order, field.Interface())
		default:
			err = binary.Read(reader, order, field.Addr().Interface())
		}
		if err != nil {
			panic(err.Error())
		}
	}
}
