package extension

// DefaultMimeExtensions maps content types to the extension a file carrying
// that type should have.
func DefaultMimeExtensions() map[string]string {
	return map[string]string{
		"image/gif":                         "gif",
		"image/jpeg":                        "jpg",
		"image/pjpeg":                       "jpg",
		"image/x-png":                       "png",
		"image/jpg":                         "jpg",
		"image/png":                         "png",
		"image/bmp":                         "bmp",
		"image/tiff":                        "tiff",
		"application/x-shockwave-flash":     "swf",
		"application/pdf":                   "pdf",
		"application/pgp-signature":         "sig",
		"application/futuresplash":          "spl",
		"application/msword":                "doc",
		"application/postscript":            "ps",
		"application/x-bittorrent":          "torrent",
		"application/x-dvi":                 "dvi",
		"application/gzip":                  "gz",
		"application/x-gzip":                "gz",
		"application/x-ns-proxy-autoconfig": "pac",
		"application/x-tgz":                 "tar.gz",
		"application/x-tar":                 "tar",
		"application/zip":                   "zip",
		"audio/mpeg":                        "mp3",
		"audio/x-mpegurl":                   "m3u",
		"audio/x-ms-wma":                    "wma",
		"audio/x-ms-wax":                    "wax",
		"audio/x-wav":                       "wav",
		"audio/wav":                         "wav",
		"image/x-xbitmap":                   "xbm",
		"image/x-xpixmap":                   "xpm",
		"image/x-xwindowdump":               "xwd",
		"text/css":                          "css",
		"text/html":                         "html",
		"text/javascript":                   "js",
		"text/plain":                        "txt",
		"text/xml":                          "xml",
		"video/mpeg":                        "mpeg",
		"video/quicktime":                   "mov",
		"video/x-msvideo":                   "avi",
		"video/x-ms-asf":                    "asf",
		"video/x-ms-wmv":                    "wmv",
	}
}

// ImageMimeExtensions is the subset of DefaultMimeExtensions used by image
// columns.
func ImageMimeExtensions() map[string]string {
	return map[string]string{
		"image/gif":   "gif",
		"image/jpeg":  "jpg",
		"image/pjpeg": "jpg",
		"image/x-png": "png",
		"image/jpg":   "jpg",
		"image/png":   "png",
	}
}

func DefaultExtensions() Set {
	return NewSet("asf", "ai", "avi", "doc", "dvi", "dwg", "eps", "gif", "gz", "jpg", "jpeg",
		"mov", "mp3", "mpeg", "odf", "pac", "pdf", "png", "ppt", "psd", "swf", "swx", "tar",
		"tar.gz", "torrent", "txt", "wmv", "wav", "xls", "zip")
}

func ImageExtensions() Set {
	return NewSet("jpg", "jpeg", "gif", "png")
}

var contentTypes = map[string]string{
	"jpg":     "image/jpeg",
	"jpeg":    "image/jpeg",
	"gif":     "image/gif",
	"png":     "image/png",
	"bmp":     "image/bmp",
	"tif":     "image/tiff",
	"tiff":    "image/tiff",
	"pdf":     "application/pdf",
	"doc":     "application/msword",
	"ps":      "application/postscript",
	"eps":     "application/postscript",
	"ai":      "application/postscript",
	"swf":     "application/x-shockwave-flash",
	"torrent": "application/x-bittorrent",
	"dvi":     "application/x-dvi",
	"gz":      "application/x-gzip",
	"tar":     "application/x-tar",
	"tar.gz":  "application/x-tgz",
	"zip":     "application/zip",
	"pac":     "application/x-ns-proxy-autoconfig",
	"mp3":     "audio/mpeg",
	"wav":     "audio/x-wav",
	"css":     "text/css",
	"html":    "text/html",
	"js":      "text/javascript",
	"txt":     "text/plain",
	"xml":     "text/xml",
	"mpeg":    "video/mpeg",
	"mov":     "video/quicktime",
	"avi":     "video/x-msvideo",
	"asf":     "video/x-ms-asf",
	"wmv":     "video/x-ms-wmv",
	"xls":     "application/vnd.ms-excel",
	"ppt":     "application/vnd.ms-powerpoint",
	"psd":     "image/vnd.adobe.photoshop",
}
