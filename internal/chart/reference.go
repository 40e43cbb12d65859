package chart

// BGR is a colour in OpenCV channel order.
type BGR [3]float64

// ReferenceColors are the published values of the 24-patch Macbeth
// ColorChecker in BGR order, top-left patch first, reading row by row.
var ReferenceColors = []BGR{
	{68, 82, 115}, {130, 150, 194}, {157, 122, 98}, {67, 108, 87}, {177, 128, 133}, {170, 189, 103},
	{44, 126, 214}, {166, 91, 80}, {99, 90, 193}, {108, 60, 94}, {64, 188, 157}, {46, 163, 224},
	{150, 61, 56}, {73, 148, 70}, {60, 54, 175}, {31, 199, 231}, {149, 86, 187}, {161, 133, 8},
	{242, 243, 243}, {200, 200, 200}, {160, 160, 160}, {121, 122, 122}, {85, 85, 85}, {52, 52, 52},
}
