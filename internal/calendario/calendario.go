// Package calendario computes due dates in business days, skipping weekends
// and Brazilian national holidays (fixed table plus the Easter-relative ones).
package calendario

import "time"

// feriadosFixos are national holidays as month/day pairs.
var feriadosFixos = [][2]int{
	{1, 1},   // Confraternização Universal
	{4, 21},  // Tiradentes
	{5, 1},   // Dia do Trabalho
	{9, 7},   // Independência
	{10, 12}, // Nossa Senhora Aparecida
	{11, 2},  // Finados
	{11, 15}, // Proclamação da República
	{12, 25}, // Natal
}

// DomingoDePascoa returns Easter Sunday for a year (Meeus/Jones/Butcher).
func DomingoDePascoa(ano int) time.Time {
	a := ano % 19
	b := ano / 100
	c := ano % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	mes := (h + l - 7*m + 114) / 31
	dia := (h+l-7*m+114)%31 + 1
	return time.Date(ano, time.Month(mes), dia, 0, 0, 0, 0, time.UTC)
}

// EhFeriado reports whether d falls on a national holiday.
func EhFeriado(d time.Time) bool {
	for _, f := range feriadosFixos {
		if int(d.Month()) == f[0] && d.Day() == f[1] {
			return true
		}
	}
	pascoa := DomingoDePascoa(d.Year())
	diaD := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	// Carnaval (terça), Sexta-feira Santa, Corpus Christi
	for _, offset := range []int{-47, -2, 60} {
		if diaD.Equal(pascoa.AddDate(0, 0, offset)) {
			return true
		}
	}
	return false
}

// EhDiaUtil reports whether d is a business day.
func EhDiaUtil(d time.Time) bool {
	wd := d.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !EhFeriado(d)
}

// AdicionarDiasUteis returns the date n business days after base.
// The base day itself never counts.
func AdicionarDiasUteis(base time.Time, n int) time.Time {
	d := base
	for restantes := n; restantes > 0; {
		d = d.AddDate(0, 0, 1)
		if EhDiaUtil(d) {
			restantes--
		}
	}
	return d
}
