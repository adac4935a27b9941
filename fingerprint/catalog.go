package fingerprint

type resolution struct{ w, h int }

type platform struct{ name, details string }

// Desktop resolutions, common first.
var resolutions = []resolution{
	{1920, 1080},
	{1366, 768},
	{1536, 864},
	{1440, 900},
	{1280, 720},
	{1600, 900},
	{2560, 1440},
	{3840, 2160},
	{1680, 1050},
	{1920, 1200},
	{2560, 1600},
	{2880, 1800},
	{3200, 1800},
	{3840, 2400},
}

var colorDepths = []int{24, 30, 48}

var deviceMemories = []int{4, 8, 16, 32, 64}

var hardwareConcurrencies = []int{4, 6, 8, 12, 16, 24, 32}

var platforms = []platform{
	{"Windows", "Win64; x64"},
	{"Windows", "Win64; x64; rv:122.0"},
	{"Windows", "Win64; x64; rv:121.0"},
	{"Macintosh", "Intel Mac OS X 10_15_7"},
	{"Macintosh", "Intel Mac OS X 11_2_3"},
	{"Macintosh", "Intel Mac OS X 12_3_1"},
	{"X11", "Linux x86_64"},
	{"X11", "Linux x86_64; rv:122.0"},
	{"X11", "Linux x86_64; rv:121.0"},
}

var webGLVendors = []string{
	"Google Inc. (NVIDIA)",
	"NVIDIA Corporation",
	"Google Inc. (AMD)",
	"AMD Corporation",
	"Google Inc. (Intel)",
	"Intel Inc.",
	"Apple GPU",
	"Apple M1",
	"Apple M2",
	"Apple M3",
}

var webGLRenderers = []string{
	"ANGLE (NVIDIA GeForce RTX 3060 Direct3D11 vs_5_0)",
	"ANGLE (NVIDIA GeForce RTX 3070 Direct3D11 vs_5_0)",
	"ANGLE (NVIDIA GeForce RTX 3080 Direct3D11 vs_5_0)",
	"ANGLE (AMD Radeon RX 6800 XT Direct3D11 vs_5_0)",
	"ANGLE (AMD Radeon RX 6900 XT Direct3D11 vs_5_0)",
	"ANGLE (Intel(R) UHD Graphics Direct3D11 vs_5_0)",
	"ANGLE (Intel(R) Iris(R) Xe Graphics Direct3D11 vs_5_0)",
	"Apple M1 Pro",
	"Apple M2 Pro",
	"Apple M3 Pro",
}

// Italian-first Accept-Language values.
var acceptLanguages = []string{
	"it-IT,it;q=0.9,en-US;q=0.8,en;q=0.7",
	"it;q=0.9,en-US;q=0.8,en;q=0.7",
	"it-IT,it;q=0.9,en;q=0.8",
	"it-IT,it;q=0.9,en-GB;q=0.8,en;q=0.7",
	"it-IT,it;q=0.9,fr-FR;q=0.8,fr;q=0.7",
	"it-IT,it;q=0.9,de-DE;q=0.8,de;q=0.7",
	"it-IT,it;q=0.9,es-ES;q=0.8,es;q=0.7",
}

var timezones = []string{
	"Europe/Rome",
	"Europe/Vatican",
	"Europe/San_Marino",
	"Europe/Paris",
	"Europe/Berlin",
	"Europe/Madrid",
}

var acceptValues = []string{
	"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
}

var touchPoints = []int{0, 0, 0, 1, 5, 10}
