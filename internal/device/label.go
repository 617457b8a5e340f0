package device

import "strings"

// wellKnownLabels covers popular packages whose names derive poorly.
var wellKnownLabels = map[string]string{
	"com.google.android.youtube":   "YouTube",
	"com.google.android.gms":       "Google Play Services",
	"com.android.vending":          "Google Play Store",
	"com.google.android.apps.maps": "Maps",
	"com.whatsapp":                 "WhatsApp",
	"com.facebook.katana":          "Facebook",
	"com.facebook.orca":            "Messenger",
	"com.instagram.android":        "Instagram",
}

// labelSkipWords are package name segments that carry no meaning.
var labelSkipWords = map[string]bool{
	"com": true, "net": true, "org": true, "android": true,
	"google": true, "ss": true, "ugc": true, "app": true,
}

// DeriveLabel guesses a display label from a package name when the APK's
// own label is unavailable over adb. "org.mozilla.firefox" becomes
// "Mozilla Firefox".
func DeriveLabel(pkg string) string {
	if label, ok := wellKnownLabels[pkg]; ok {
		return label
	}

	parts := strings.Split(pkg, ".")
	var meaningful []string
	for _, p := range parts {
		if !labelSkipWords[strings.ToLower(p)] && len(p) > 2 {
			meaningful = append(meaningful, p)
		}
	}
	if len(meaningful) == 0 {
		meaningful = parts[len(parts)-1:]
	}
	for i, p := range meaningful {
		if p == "" {
			continue
		}
		meaningful[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(meaningful, " ")
}
