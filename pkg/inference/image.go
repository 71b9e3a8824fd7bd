package inference

import "encoding/base64"

// EncodeImageBytesBase64 encodes raw JPEG bytes to base64.
func EncodeImageBytesBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// JPEGDataURL wraps JPEG bytes as a data URL for image_url content.
func JPEGDataURL(data []byte) string {
	return "data:image/jpeg;base64," + EncodeImageBytesBase64(data)
}
