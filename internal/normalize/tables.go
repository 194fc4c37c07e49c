package normalize

// homoglyphs maps lowercase look-alikes from other scripts, and Latin letters
// without a canonical decomposition, to ASCII. Values are always lowercase
// ASCII so later stages see a stable alphabet.
var homoglyphs = map[rune]string{
	// Cyrillic
	'а': "a", 'в': "b", 'г': "r", 'д': "d", 'е': "e", 'ё': "e", 'з': "3",
	'и': "u", 'й': "u", 'к': "k", 'л': "n", 'м': "m", 'н': "h", 'о': "o",
	'п': "n", 'р': "p", 'с': "c", 'т': "t", 'у': "y", 'х': "x", 'ц': "u",
	'ч': "4", 'ш': "w", 'щ': "w", 'ъ': "b", 'ы': "bi", 'ь': "b", 'э': "e",
	'ю': "io", 'я': "r", 'ѕ': "s", 'і': "i", 'ї': "i", 'ј': "j", 'ԁ': "d",
	'ԛ': "q", 'ԝ': "w", 'һ': "h", 'ӏ': "l", 'ɡ': "g",

	// Greek
	'α': "a", 'β': "b", 'γ': "y", 'δ': "d", 'ε': "e", 'ζ': "z", 'η': "n",
	'θ': "o", 'ι': "i", 'κ': "k", 'λ': "l", 'μ': "u", 'ν': "v", 'ξ': "e",
	'ο': "o", 'π': "n", 'ρ': "p", 'σ': "o", 'ς': "c", 'τ': "t", 'υ': "u",
	'φ': "o", 'χ': "x", 'ψ': "w", 'ω': "w",

	// Armenian and Cherokee
	'օ': "o", 'ս': "u", 'հ': "h", 'ո': "n", 'ռ': "n", 'ա': "w", 'ց': "g",

	// Latin without decompositions
	'ø': "o", 'ł': "l", 'đ': "d", 'ħ': "h", 'ı': "i", 'ŀ': "l", 'ŧ': "t",
	'ƀ': "b", 'ƈ': "c", 'ɗ': "d", 'ƒ': "f", 'ɠ': "g", 'ɦ': "h", 'ɨ': "i",
	'ʝ': "j", 'ƙ': "k", 'ɱ': "m", 'ɲ': "n", 'ɵ': "o", 'ƥ': "p", 'ʠ': "q",
	'ɍ': "r", 'ʂ': "s", 'ƭ': "t", 'ʋ': "v", 'ⱳ': "w", 'ɏ': "y", 'ȥ': "z",
	'ß': "ss", 'æ': "ae", 'œ': "oe", 'þ': "p", 'ð': "d",

	// small capitals
	'ᴀ': "a", 'ʙ': "b", 'ᴄ': "c", 'ᴅ': "d", 'ᴇ': "e", 'ꜰ': "f", 'ɢ': "g",
	'ʜ': "h", 'ɪ': "i", 'ᴊ': "j", 'ᴋ': "k", 'ʟ': "l", 'ᴍ': "m", 'ɴ': "n",
	'ᴏ': "o", 'ᴘ': "p", 'ʀ': "r", 'ꜱ': "s", 'ᴛ': "t", 'ᴜ': "u", 'ᴠ': "v",
	'ᴡ': "w", 'ʏ': "y", 'ᴢ': "z",

	// circled and parenthesized letters survive NFD; fold the common ones
	'ⓐ': "a", 'ⓑ': "b", 'ⓒ': "c", 'ⓓ': "d", 'ⓔ': "e", 'ⓕ': "f", 'ⓖ': "g",
	'ⓗ': "h", 'ⓘ': "i", 'ⓙ': "j", 'ⓚ': "k", 'ⓛ': "l", 'ⓜ': "m", 'ⓝ': "n",
	'ⓞ': "o", 'ⓟ': "p", 'ⓠ': "q", 'ⓡ': "r", 'ⓢ': "s", 'ⓣ': "t", 'ⓤ': "u",
	'ⓥ': "v", 'ⓦ': "w", 'ⓧ': "x", 'ⓨ': "y", 'ⓩ': "z",

	// symbols
	'€': "e", '£': "l", '¥': "y", '¢': "c", '©': "c", '®': "r", '¡': "i",
	'§': "s", '×': "x",
}

var leet = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'6': 'g',
	'7': 't',
	'8': 'b',
	'9': 'g',
	'@': 'a',
	'$': 's',
	'|': 'l',
}
