package i18n

import (
	"fmt"
	"time"
)

// Weekday and month name tables per locale. time.Weekday is Sunday=0;
// the tables below are Monday-first to match the display convention, so
// index with mondayIndex.

var shortDays = map[string][7]string{
	"ru": {"Пн", "Вт", "Ср", "Чт", "Пт", "Сб", "Вс"},
	"uz": {"Dush", "Sesh", "Chor", "Pay", "Jum", "Shan", "Yak"},
	"en": {"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"},
	"tr": {"Pzt", "Sal", "Çar", "Per", "Cum", "Cmt", "Paz"},
}

var longDays = map[string][7]string{
	"ru": {"Понедельник", "Вторник", "Среда", "Четверг", "Пятница", "Суббота", "Воскресенье"},
	"uz": {"Dushanba", "Seshanba", "Chorshanba", "Payshanba", "Juma", "Shanba", "Yakshanba"},
	"en": {"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"},
	"tr": {"Pazartesi", "Salı", "Çarşamba", "Perşembe", "Cuma", "Cumartesi", "Pazar"},
}

var shortMonths = map[string][12]string{
	"ru": {"янв", "фев", "мар", "апр", "май", "июн", "июл", "авг", "сен", "окт", "ноя", "дек"},
	"uz": {"yan", "fev", "mar", "apr", "may", "iyun", "iyul", "avg", "sen", "okt", "noy", "dek"},
	"en": {"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"},
	"tr": {"Oca", "Şub", "Mar", "Nis", "May", "Haz", "Tem", "Ağu", "Eyl", "Eki", "Kas", "Ara"},
}

var longMonths = map[string][12]string{
	"ru": {"января", "февраля", "марта", "апреля", "мая", "июня",
		"июля", "августа", "сентября", "октября", "ноября", "декабря"},
	"uz": {"yanvar", "fevral", "mart", "aprel", "may", "iyun",
		"iyul", "avgust", "sentabr", "oktabr", "noyabr", "dekabr"},
	"en": {"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December"},
	"tr": {"Ocak", "Şubat", "Mart", "Nisan", "Mayıs", "Haziran",
		"Temmuz", "Ağustos", "Eylül", "Ekim", "Kasım", "Aralık"},
}

func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

func localeOrFallback[T any](tables map[string]T, locale string) T {
	if t, ok := tables[locale]; ok {
		return t
	}
	return tables[FallbackLocale]
}

// FormatDateShort renders a date as "Mon, 23 Dec" in the given locale,
// the format used on date selection buttons.
func FormatDateShort(t time.Time, locale string) string {
	days := localeOrFallback(shortDays, locale)
	months := localeOrFallback(shortMonths, locale)
	return fmt.Sprintf("%s, %d %s", days[mondayIndex(t.Weekday())], t.Day(), months[t.Month()-1])
}

// FormatDateLong renders a date as "Monday, 23 December" in the given
// locale, the format used in booking confirmations.
func FormatDateLong(t time.Time, locale string) string {
	days := localeOrFallback(longDays, locale)
	months := localeOrFallback(longMonths, locale)
	return fmt.Sprintf("%s, %d %s", days[mondayIndex(t.Weekday())], t.Day(), months[t.Month()-1])
}

// FormatDayMonth renders a date as "23 December" in the given locale,
// the format used in reminders.
func FormatDayMonth(t time.Time, locale string) string {
	months := localeOrFallback(longMonths, locale)
	return fmt.Sprintf("%d %s", t.Day(), months[t.Month()-1])
}
