package query

import (
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// attributeValue converts a typed literal into a backend primitive: string,
// number, or byte array (base64-encoded on the wire by the SDK).
func attributeValue(v Value) types.AttributeValue {
	switch v.Type {
	case TypeString:
		return &types.AttributeValueMemberS{Value: v.Str}
	case TypeNumber:
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(v.Num, 10)}
	case TypeBytes:
		return &types.AttributeValueMemberB{Value: v.Bytes}
	default:
		return nil
	}
}

// letterCode encodes a counter as base-26 lowercase letters ("a", "b", ...,
// "z", "ba", ...). Literal placeholders use it so that names generated within
// one compile pass never collide.
func letterCode(n int) string {
	code := []byte{byte('a' + n%26)}
	for n /= 26; n > 0; n /= 26 {
		code = append([]byte{byte('a' + n%26)}, code...)
	}
	return string(code)
}
