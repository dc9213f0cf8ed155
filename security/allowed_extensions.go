package security

// AllowedImageExtensions are the project image types the fork wizard uploads.
var AllowedImageExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".webp", ".avif", ".svg",
}
