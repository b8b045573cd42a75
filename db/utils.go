package db

import "bytes"

// PrependNamespace returns namespace|key in a fresh slice.
func PrependNamespace(namespace []byte, key []byte) []byte {
	if namespace == nil {
		return key
	}
	out := make([]byte, 0, len(namespace)+len(Separator)+len(key))
	out = append(out, namespace...)
	out = append(out, Separator...)
	return append(out, key...)
}

// TrimNamespace strips the namespace prefix added by PrependNamespace.
func TrimNamespace(namespace []byte, key []byte) []byte {
	if namespace == nil {
		return key
	}
	prefix := PrependNamespace(namespace, nil)
	if !bytes.HasPrefix(key, prefix) {
		return key
	}
	return key[len(prefix):]
}

// NamespaceRange returns the iterator bounds covering every key of namespace.
func NamespaceRange(namespace []byte) (start []byte, end []byte) {
	start = PrependNamespace(namespace, nil)
	end = make([]byte, len(start))
	copy(end, start)
	// the separator is never 0xff, so incrementing the last byte cannot overflow
	end[len(end)-1]++
	return start, end
}

func ConvNilToBytes(byteArray []byte) []byte {
	if byteArray == nil {
		return []byte{}
	}
	return byteArray
}

// IsReverse reports whether a range from start to end is walked backwards.
func IsReverse(start []byte, end []byte) bool {
	return end != nil && bytes.Compare(start, end) == 1
}
